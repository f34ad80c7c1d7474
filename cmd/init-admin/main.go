package main

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"keyguard/internal/app"
	"keyguard/internal/config"
	"keyguard/internal/storage"
)

const minPasswordLength = 8

func main() {
	fmt.Println("Keyguard - Bootstrap Superuser Initialization")
	fmt.Println(strings.Repeat("=", 46))

	// Load configuration (primarily for database connection)
	cfg, err := config.Load()
	if err != nil {
		fail("Failed to load configuration: %v", err)
	}

	email := cfg.Bootstrap.AdminEmail
	password := cfg.Bootstrap.AdminPassword
	if email == "" || password == "" {
		fail("ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD must be set")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fail("Invalid email format: %s", email)
	}
	if len(password) < minPasswordLength {
		fail("Password must be at least %d characters long", minPasswordLength)
	}
	if !cfg.UsesDatabase() {
		fail("DATABASE_URL must be set; the in-memory store does not outlive this process")
	}

	// Connect to database
	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		fail("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Applying schema...")
	if err := db.Migrate(ctx); err != nil {
		fail("%v", err)
	}

	owner, created, err := app.EnsureSuperuser(ctx, db.NewOwnerRepository(), email, password)
	if err != nil {
		fail("Failed to create superuser: %v", err)
	}

	if !created {
		fmt.Printf("INFO: Owner with email %s already exists (superuser: %t)\n", owner.Email, owner.IsSuperuser)
		fmt.Println("Exiting successfully (no action taken)")
		return
	}

	fmt.Println()
	fmt.Println("SUCCESS: Bootstrap superuser created")
	fmt.Printf("Email: %s\n", owner.Email)
	fmt.Printf("ID: %s\n", owner.ID)
	fmt.Printf("Tier: %s\n", owner.SubscriptionTier)
	fmt.Println("\nSign in with POST /auth/login to obtain a session token.")
	fmt.Println("Remove ADMIN_BOOTSTRAP_PASSWORD from the environment once you are done.")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ERROR: "+format+"\n", args...)
	os.Exit(1)
}
