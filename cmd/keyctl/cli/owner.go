package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"keyguard/internal/app"
	"keyguard/internal/auth"
	"keyguard/internal/models"
)

func newOwnerCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage owner accounts",
	}

	cmd.AddCommand(newOwnerCreateCmd(open))
	return cmd
}

func newOwnerCreateCmd(open Opener) *cobra.Command {
	var (
		email     string
		password  string
		tier      string
		superuser bool
	)

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create an owner account",
		Example: `  keyctl owner create --email dev@example.com --password 's3cret-pass' --tier basic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !auth.IsKnownTier(tier) {
				return fmt.Errorf("unknown tier %q", tier)
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				owner := &models.Owner{
					Email:            strings.ToLower(strings.TrimSpace(email)),
					PasswordHash:     hash,
					SubscriptionTier: tier,
					IsActive:         true,
					IsSuperuser:      superuser,
				}
				if err := s.Owners.Create(ctx, owner); err != nil {
					return fmt.Errorf("create owner: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Owner %s created (id %s, tier %s).\n", owner.Email, owner.ID, owner.SubscriptionTier)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Login email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Login password (required)")
	cmd.Flags().StringVar(&tier, "tier", models.TierFree, "Subscription tier")
	cmd.Flags().BoolVar(&superuser, "superuser", false, "Grant superuser rights")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}
