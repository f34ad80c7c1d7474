package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"keyguard/internal/app"
	"keyguard/internal/auth"
	"keyguard/internal/models"
)

func newKeyCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, rotate and revoke API keys and inspect their rate limits.",
	}

	cmd.AddCommand(newKeyCreateCmd(open))
	cmd.AddCommand(newKeyListCmd(open))
	cmd.AddCommand(newKeyStatusCmd(open))
	cmd.AddCommand(newKeyRotateCmd(open))
	cmd.AddCommand(newKeyRevokeCmd(open))
	cmd.AddCommand(newKeyDeleteCmd(open))
	cmd.AddCommand(newKeyResetLimitsCmd(open))

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd(open Opener) *cobra.Command {
	var (
		ownerEmail  string
		params      auth.CreateKeyParams
		description string
		expiresIn   int
		perMinute   int
		perHour     int
		perDay      int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Issue a key for an owner. The raw key is shown once and cannot be retrieved again.",
		Example: `  keyctl key create --owner dev@example.com --name ci --scopes read,write
  keyctl key create --owner dev@example.com --name batch --per-minute 5 --expires-in-days 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("description") {
				params.Description = &description
			}
			if flags.Changed("expires-in-days") {
				params.ExpiresInDays = &expiresIn
			}
			if flags.Changed("per-minute") {
				params.RateLimitPerMinute = &perMinute
			}
			if flags.Changed("per-hour") {
				params.RateLimitPerHour = &perHour
			}
			if flags.Changed("per-day") {
				params.RateLimitPerDay = &perDay
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				owner, err := s.Owners.GetByEmail(ctx, strings.ToLower(ownerEmail))
				if err != nil {
					return fmt.Errorf("look up owner %q: %w", ownerEmail, err)
				}

				raw, key, err := s.Manager.Create(ctx, owner, params)
				if err != nil {
					return fmt.Errorf("create api key: %w", err)
				}
				return printSecret(cmd.OutOrStdout(), "created", raw, key, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&ownerEmail, "owner", "", "Email of the owning account (required)")
	cmd.Flags().StringVar(&params.Name, "name", "", "Key name, unique per owner (required)")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringSliceVar(&params.Scopes, "scopes", nil, "Comma-separated scopes (default read)")
	cmd.Flags().IntVar(&expiresIn, "expires-in-days", 0, "Expire the key after this many days")
	cmd.Flags().IntVar(&perMinute, "per-minute", 0, "Requests per minute (default from tier)")
	cmd.Flags().IntVar(&perHour, "per-hour", 0, "Requests per hour (default from tier)")
	cmd.Flags().IntVar(&perDay, "per-day", 0, "Requests per day (default from tier)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("name")

	return cmd
}

// ---------- key list ----------

func newKeyListCmd(open Opener) *cobra.Command {
	var (
		ownerEmail string
		opts       auth.ListOptions
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		Long:    "List one owner's keys, or every key when --owner is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				var page *auth.KeyPage
				var err error
				if ownerEmail == "" {
					page, err = s.Manager.ListAll(ctx, opts)
				} else {
					owner, lookupErr := s.Owners.GetByEmail(ctx, strings.ToLower(ownerEmail))
					if lookupErr != nil {
						return fmt.Errorf("look up owner %q: %w", ownerEmail, lookupErr)
					}
					page, err = s.Manager.List(ctx, owner, opts)
				}
				if err != nil {
					return fmt.Errorf("list api keys: %w", err)
				}
				return printKeyPage(cmd.OutOrStdout(), page, jsonOutput)
			})
		},
	}

	cmd.Flags().StringVar(&ownerEmail, "owner", "", "Only list keys of this owner")
	cmd.Flags().BoolVar(&opts.IncludeInactive, "include-inactive", false, "Include revoked keys")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "Page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 50, "Keys per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key status ----------

func newKeyStatusCmd(open Opener) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <key-id>",
		Short: "Show usage counters and rate limit windows of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				key, err := s.Manager.Get(ctx, operator, id)
				if err != nil {
					return fmt.Errorf("get api key: %w", err)
				}
				usage := s.Manager.CurrentUsage(ctx, key)
				windows := s.Manager.RateLimitStatus(ctx, key)
				return printStatus(cmd.OutOrStdout(), key, usage, windows, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// ---------- key rotate ----------

func newKeyRotateCmd(open Opener) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace a key's secret",
		Long:  "Issue a new secret for the key. The old secret stops working immediately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				raw, key, err := s.Manager.Rotate(ctx, operator, id)
				if err != nil {
					return fmt.Errorf("rotate api key: %w", err)
				}
				return printSecret(cmd.OutOrStdout(), "rotated", raw, key, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Deactivate a key without deleting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				inactive := false
				key, err := s.Manager.Update(ctx, operator, id, auth.UpdateKeyParams{IsActive: &inactive})
				if err != nil {
					return fmt.Errorf("revoke api key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key %s (%s) revoked.\n", key.ID, key.KeyPrefix)
				return nil
			})
		},
	}
}

// ---------- key delete ----------

func newKeyDeleteCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <key-id>",
		Aliases: []string{"rm"},
		Short:   "Permanently delete a key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				if err := s.Manager.Delete(ctx, operator, id); err != nil {
					return fmt.Errorf("delete api key: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key %s deleted.\n", id)
				return nil
			})
		},
	}
}

// ---------- key reset-limits ----------

func newKeyResetLimitsCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-limits <key-id>",
		Short: "Clear a key's rate limit windows and usage counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withServices(cmd, open, func(ctx context.Context, s *app.Services) error {
				if err := s.Manager.ResetLimits(ctx, id); err != nil {
					return fmt.Errorf("reset limits: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rate limits of %s reset.\n", id)
				return nil
			})
		},
	}
}

func parseID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid key id %q: %w", arg, err)
	}
	return id, nil
}

type keyRow struct {
	ID        string     `json:"id"`
	Owner     string     `json:"owner_id"`
	Name      string     `json:"name"`
	Prefix    string     `json:"prefix"`
	Scopes    []string   `json:"scopes"`
	Active    bool       `json:"active"`
	Limits    [3]int     `json:"limits"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used_at,omitempty"`
}

func toRow(k *models.APIKey) keyRow {
	return keyRow{
		ID:        k.ID.String(),
		Owner:     k.OwnerID.String(),
		Name:      k.Name,
		Prefix:    k.KeyPrefix,
		Scopes:    k.Scopes,
		Active:    k.IsActive,
		Limits:    [3]int{k.RateLimitPerMinute, k.RateLimitPerHour, k.RateLimitPerDay},
		ExpiresAt: k.ExpiresAt,
		LastUsed:  k.LastUsedAt,
	}
}

func printSecret(w io.Writer, verb, raw string, key *models.APIKey, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(w, struct {
			keyRow
			Key string `json:"key"`
		}{toRow(key), raw})
	}

	fmt.Fprintf(w, "API key %s:\n\n", verb)
	fmt.Fprintf(w, "  ID:     %s\n", key.ID)
	fmt.Fprintf(w, "  Name:   %s\n", key.Name)
	fmt.Fprintf(w, "  Key:    %s\n", raw)
	fmt.Fprintf(w, "  Scopes: %s\n", strings.Join(key.Scopes, ","))
	fmt.Fprintf(w, "  Limits: %d/min %d/hour %d/day\n", key.RateLimitPerMinute, key.RateLimitPerHour, key.RateLimitPerDay)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Save this key now - it cannot be retrieved again.")
	return nil
}

func printKeyPage(w io.Writer, page *auth.KeyPage, jsonOutput bool) error {
	rows := make([]keyRow, len(page.Keys))
	for i, k := range page.Keys {
		rows[i] = toRow(k)
	}

	if jsonOutput {
		return printJSON(w, struct {
			Items []keyRow `json:"items"`
			Total int      `json:"total_count"`
		}{rows, page.Total})
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No API keys found. Use 'keyctl key create' to create one.")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-20s %-10s %-20s %-6s\n", "ID", "NAME", "PREFIX", "LIMITS", "ACTIVE")
	for _, r := range rows {
		active := "yes"
		if !r.Active {
			active = "no"
		}
		limits := fmt.Sprintf("%d/%d/%d", r.Limits[0], r.Limits[1], r.Limits[2])
		fmt.Fprintf(w, "%-36s %-20s %-10s %-20s %-6s\n", r.ID, r.Name, r.Prefix, limits, active)
	}
	fmt.Fprintf(w, "\n%d of %d keys (page %d)\n", len(rows), page.Total, page.Page)
	return nil
}
