// Package app assembles the stores, limiters and workers shared by the HTTP
// server and the operator tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"keyguard/internal/auth"
	"keyguard/internal/config"
	"keyguard/internal/logging"
	"keyguard/internal/metrics"
	"keyguard/internal/models"
	"keyguard/internal/queue"
	"keyguard/internal/ratelimit"
	"keyguard/internal/storage"
	"keyguard/internal/utils"
)

// Redis key prefixes
const (
	apiKeyLimitPrefix = "api_key_rate_limit"
	ipLimitPrefix     = "ip_rate_limit"
	usageQueueName    = "keyguard:usage"
)

// OwnerStore is the owner store used by sessions and bootstrap
type OwnerStore interface {
	auth.OwnerStore
	Create(ctx context.Context, owner *models.Owner) error
	Update(ctx context.Context, owner *models.Owner) error
}

// HealthCheck checks one backend
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services holds the long-lived components. DB is nil in standalone mode and
// IPLimiter is nil when IP limiting is disabled.
type Services struct {
	Config      *config.Config
	DB          *storage.DB
	Redis       *storage.RedisClient
	Keys        auth.KeyStore
	Owners      OwnerStore
	Metrics     *metrics.PrometheusMetrics
	Manager     *auth.Manager
	Sessions    *auth.SessionManager
	IPLimiter   *ratelimit.IPLimiter
	UsageWorker *auth.UsageWorker
	AccessLog   *logging.AccessLogger

	logger *utils.Logger
}

// New connects the backends and wires the services. The usage worker is
// created but not started.
func New(ctx context.Context, cfg *config.Config) (*Services, error) {
	s := &Services{
		Config:  cfg,
		Metrics: metrics.NewPrometheusMetrics(),
		logger:  utils.NewLogger("app"),
	}

	if err := s.openStores(ctx); err != nil {
		return nil, err
	}

	// An unreachable Redis is not fatal: limiter calls fail open
	redisClient, err := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		s.logger.Warn("Redis unavailable, rate limits will fail open", "address", cfg.Redis.Address, "error", err)
	}
	s.Redis = redisClient
	s.registerPoolMetrics()

	var coordinator *ratelimit.Coordinator
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewSlidingWindowLimiter(redisClient.Client(), apiKeyLimitPrefix,
			ratelimit.WithTimeout(cfg.RateLimit.CheckTimeout), ratelimit.WithMetrics(s.Metrics))
		coordinator = ratelimit.NewCoordinator(limiter, "api_key", s.Metrics)

		if cfg.RateLimit.IPEnabled {
			ipLimiter := ratelimit.NewSlidingWindowLimiter(redisClient.Client(), ipLimitPrefix,
				ratelimit.WithTimeout(cfg.RateLimit.CheckTimeout), ratelimit.WithMetrics(s.Metrics))
			s.IPLimiter = ratelimit.NewIPLimiter(ratelimit.NewCoordinator(ipLimiter, "ip", s.Metrics), ratelimit.IPTiers{
				Anonymous:     cfg.RateLimit.AnonymousPerMinute,
				Authenticated: cfg.RateLimit.AuthenticatedPerMinute,
				Premium:       cfg.RateLimit.PremiumPerMinute,
			})
		}
	} else {
		s.logger.Warn("Rate limiting disabled")
	}

	s.Manager = auth.NewManager(s.Keys, s.Owners, coordinator,
		auth.WithUsageMirror(redisClient.Client()), auth.WithMetrics(s.Metrics))
	s.Sessions = auth.NewSessionManager(s.Owners, cfg.JWTSecret, cfg.SessionTTL)

	if err := s.buildUsageWorker(); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.AccessLog.File != "" {
		accessLog, err := logging.NewAccessLogger(logging.AccessLogConfig{
			FileTemplate: cfg.AccessLog.File,
			MaxSize:      int64(cfg.AccessLog.MaxSizeMB) << 20,
			MaxFiles:     cfg.AccessLog.MaxFiles,
			BufferSize:   cfg.AccessLog.BufferSize,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.AccessLog = accessLog
	}

	if cfg.Bootstrap.AdminEmail != "" && cfg.Bootstrap.AdminPassword != "" {
		owner, created, err := EnsureSuperuser(ctx, s.Owners, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to bootstrap superuser: %w", err)
		}
		if created {
			s.logger.Info("Bootstrap superuser created", "owner_id", owner.ID, "email", owner.Email)
		}
	}

	return s, nil
}

func (s *Services) openStores(ctx context.Context) error {
	cfg := s.Config
	if !cfg.UsesDatabase() {
		s.logger.Warn("DATABASE_URL not set, using in-memory store")
		s.Keys = storage.NewMemoryAPIKeyStore()
		s.Owners = storage.NewMemoryOwnerStore()
		return nil
	}

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
	}

	s.DB = db
	s.Keys = db.NewAPIKeyRepository()
	s.Owners = db.NewOwnerRepository()
	return nil
}

func (s *Services) buildUsageWorker() error {
	qc := s.Config.UsageQueue
	queueCfg := queue.DefaultConfig(usageQueueName)
	queueCfg.BatchSize = qc.BatchSize
	queueCfg.BatchTimeout = qc.BatchTimeout
	queueCfg.MaxRetries = qc.MaxRetries
	queueCfg.RetryBackoff = qc.RetryBackoff

	var q queue.Queue
	var dlq queue.DeadLetterQueue
	if qc.Backend == "redis" {
		rq, err := queue.NewRedisQueue(s.Redis.Client(), queueCfg)
		if err != nil {
			return fmt.Errorf("failed to create usage queue: %w", err)
		}
		rdlq, err := queue.NewRedisDeadLetterQueue(s.Redis.Client(), queueCfg)
		if err != nil {
			return fmt.Errorf("failed to create usage DLQ: %w", err)
		}
		q, dlq = rq, rdlq
	} else {
		q = queue.NewMemoryQueue(queueCfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	s.UsageWorker = auth.NewUsageWorker(q, dlq, s.Manager, queueCfg, s.Metrics)
	return nil
}

func (s *Services) registerPoolMetrics() {
	err := s.Metrics.RegisterRedisPool(func() metrics.PoolStats {
		stats := s.Redis.PoolStats()
		return metrics.PoolStats{TotalConns: stats.TotalConns, IdleConns: stats.IdleConns, Timeouts: stats.Timeouts}
	})
	if err != nil {
		s.logger.Warn("Failed to register Redis pool metrics", "error", err)
	}

	if s.DB != nil {
		if err := s.Metrics.RegisterDBStats(s.DB.Conn().DB); err != nil {
			s.logger.Warn("Failed to register database pool metrics", "error", err)
		}
	}
}

// HealthChecks lists the backends checked by the health endpoint
func (s *Services) HealthChecks() []HealthCheck {
	checks := []HealthCheck{{Name: "redis", Check: s.Redis.Health}}
	if s.DB != nil {
		checks = append(checks, HealthCheck{Name: "database", Check: s.DB.Health})
	}
	return checks
}

// Close releases the backend connections
func (s *Services) Close() error {
	if s.AccessLog != nil {
		s.AccessLog.Shutdown()
	}

	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}

// EnsureSuperuser creates a superuser with email unless an owner with that
// email already exists. It reports whether an owner was created.
func EnsureSuperuser(ctx context.Context, owners OwnerStore, email, password string) (*models.Owner, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := owners.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrOwnerNotFound) {
		return nil, false, fmt.Errorf("failed to look up owner: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	owner := &models.Owner{
		Email:            email,
		PasswordHash:     hash,
		SubscriptionTier: models.TierEnterprise,
		IsActive:         true,
		IsSuperuser:      true,
	}
	if err := owners.Create(ctx, owner); err != nil {
		return nil, false, fmt.Errorf("failed to create owner: %w", err)
	}
	return owner, true, nil
}
