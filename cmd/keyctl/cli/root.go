package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"keyguard/internal/app"
	"keyguard/internal/config"
	"keyguard/internal/models"
	"keyguard/internal/utils"
)

// Opener connects the services a command runs against. The returned func
// releases them.
type Opener func(ctx context.Context) (*app.Services, func() error, error)

// operator stands in for the person running keyctl. It may act on any key.
var operator = &models.Owner{IsSuperuser: true, SubscriptionTier: models.TierEnterprise}

// Execute creates the root command tree and runs it.
func Execute() error {
	return NewRootCmd(openFromEnv).Execute()
}

// NewRootCmd builds the command tree on top of open
func NewRootCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Administer keyguard API keys",
		Long: `keyctl manages keyguard owners and API keys directly against the configured
Postgres and Redis backends. It reads the same environment as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newKeyCmd(open))
	cmd.AddCommand(newOwnerCmd(open))

	return cmd
}

func openFromEnv(ctx context.Context) (*app.Services, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.UsesDatabase() {
		return nil, nil, errors.New("DATABASE_URL must be set; keyctl does not work against the in-memory store")
	}
	// Keep command output clean
	utils.SetDefaultLogLevel(utils.Error)

	services, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return services, services.Close, nil
}

// withServices runs fn against freshly opened services
func withServices(cmd *cobra.Command, open Opener, fn func(ctx context.Context, s *app.Services) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	services, release, err := open(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx, services)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
