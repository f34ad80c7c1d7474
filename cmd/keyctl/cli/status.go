package cli

import (
	"fmt"
	"io"
	"time"

	"keyguard/internal/auth"
	"keyguard/internal/models"
	"keyguard/internal/ratelimit"
)

type windowRow struct {
	Window     string    `json:"window"`
	Limit      int       `json:"limit"`
	Count      int       `json:"count"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
}

func printStatus(w io.Writer, key *models.APIKey, usage auth.Usage, results []ratelimit.WindowResult, jsonOutput bool) error {
	windows := make([]windowRow, len(results))
	for i, r := range results {
		windows[i] = windowRow{
			Window:     r.Window.Name,
			Limit:      r.Window.Limit,
			Count:      r.Count,
			Remaining:  r.Remaining,
			ResetAt:    r.ResetAt.UTC(),
			RetryAfter: r.RetryAfter,
			Degraded:   r.Err != nil,
		}
	}

	if jsonOutput {
		return printJSON(w, struct {
			Key     keyRow      `json:"key"`
			Usage   auth.Usage  `json:"usage"`
			Windows []windowRow `json:"windows"`
		}{toRow(key), usage, windows})
	}

	fmt.Fprintf(w, "Key %s (%s, %s)\n\n", key.ID, key.Name, key.KeyPrefix)
	fmt.Fprintf(w, "Usage (from %s):\n", usage.Source)
	fmt.Fprintf(w, "  total:  %d\n", usage.TotalRequests)
	fmt.Fprintf(w, "  minute: %d\n", usage.RequestsThisMinute)
	fmt.Fprintf(w, "  hour:   %d\n", usage.RequestsThisHour)
	fmt.Fprintf(w, "  day:    %d\n", usage.RequestsToday)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-8s %-8s %-8s %-10s %-20s\n", "WINDOW", "LIMIT", "USED", "REMAINING", "RESETS")
	for _, win := range windows {
		reset := win.ResetAt.Format(time.RFC3339)
		if win.Degraded {
			reset = "unknown (limiter unavailable)"
		}
		fmt.Fprintf(w, "%-8s %-8d %-8d %-10d %-20s\n", win.Window, win.Limit, win.Count, win.Remaining, reset)
	}
	return nil
}
