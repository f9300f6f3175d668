package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/calembot/calembot/internal/domain"
)

type statusReport struct {
	Account             string     `json:"account"`
	SessionStored       bool       `json:"session_stored"`
	DeviceID            string     `json:"device_id,omitempty"`
	PushToken           bool       `json:"push_token_registered"`
	PushTokenReceivedAt *time.Time `json:"push_token_received_at,omitempty"`
	PushAuth            bool       `json:"push_auth_stored"`
	PushAuthReceivedAt  *time.Time `json:"push_auth_received_at,omitempty"`
	Preferences         int        `json:"preferences"`
}

func newStatusCmd(app *app) *cobra.Command {
	var (
		account string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored session state for the account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username := strings.TrimSpace(account)
			if username == "" {
				username = strings.TrimSpace(app.cfg.GetString("ig.username"))
			}
			if username == "" {
				return fmt.Errorf("account username is not set: pass --account or set ig.username")
			}

			report, err := buildStatusReport(cmd, app, domain.Username(username))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			writeStatusText(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "Account username (defaults to ig.username)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

func buildStatusReport(cmd *cobra.Command, app *app, username domain.Username) (statusReport, error) {
	report := statusReport{Account: string(username)}

	state, err := app.sessions.Load(cmd.Context(), username)
	switch {
	case err == nil:
		report.SessionStored = len(state.APISettings) > 0
		report.DeviceID = state.DeviceID
		report.PushToken = state.PushToken != ""
		if !state.PushTokenReceivedAt.IsZero() {
			t := state.PushTokenReceivedAt
			report.PushTokenReceivedAt = &t
		}
		report.PushAuth = len(state.PushAuth) > 0
		if !state.PushAuthReceivedAt.IsZero() {
			t := state.PushAuthReceivedAt
			report.PushAuthReceivedAt = &t
		}
	case errors.Is(err, domain.ErrSessionNotFound):
		// No stored state yet; report zeros.
	default:
		return statusReport{}, fmt.Errorf("load session state: %w", err)
	}

	prefs, err := app.prefs.All(cmd.Context())
	if err != nil {
		return statusReport{}, fmt.Errorf("load language preferences: %w", err)
	}
	report.Preferences = len(prefs)

	return report, nil
}

func writeStatusText(cmd *cobra.Command, report statusReport) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "account: %s\n", report.Account)
	fmt.Fprintf(out, "session: %s\n", storedWord(report.SessionStored))
	if report.DeviceID != "" {
		fmt.Fprintf(out, "device id: %s\n", report.DeviceID)
	}
	fmt.Fprintf(out, "push auth: %s%s\n", storedWord(report.PushAuth), receivedSuffix(report.PushAuthReceivedAt))
	fmt.Fprintf(out, "push token: %s%s\n", registeredWord(report.PushToken), receivedSuffix(report.PushTokenReceivedAt))
	fmt.Fprintf(out, "preferences: %d\n", report.Preferences)
}

func storedWord(stored bool) string {
	if stored {
		return "stored"
	}
	return "none"
}

func registeredWord(registered bool) string {
	if registered {
		return "registered"
	}
	return "none"
}

func receivedSuffix(at *time.Time) string {
	if at == nil {
		return ""
	}
	return fmt.Sprintf(" (received %s)", at.Format(time.RFC3339))
}
