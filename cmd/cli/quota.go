package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/learnlog/internal/core"
	"github.com/sevigo/learnlog/internal/wire"
)

var (
	quotaUserID      string
	quotaGlobalLimit int64
	quotaUserLimit   int64
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and change the daily review quotas",
}

var quotaStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's usage for the service and one user",
	Example: `  learnlog-cli quota status --user 42
  learnlog-cli quota status --user 42 -o yaml`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		status, err := app.Quota.Status(ctx, quotaUserID)
		if err != nil {
			return fmt.Errorf("failed to read quota status: %w", err)
		}
		return render(os.Stdout, status, func(w io.Writer) { printQuotaStatus(w, quotaUserID, status) })
	},
}

var quotaEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn AI reviews on",
	RunE: func(_ *cobra.Command, _ []string) error {
		return setServiceEnabled(true)
	},
}

var quotaDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn AI reviews off until enabled again",
	RunE: func(_ *cobra.Command, _ []string) error {
		return setServiceEnabled(false)
	},
}

var quotaLimitsCmd = &cobra.Command{
	Use:     "limits",
	Short:   "Override the daily global and per-user limits",
	Example: `  learnlog-cli quota limits --global 500 --user 3`,
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		if err := app.Quota.UpdateLimits(ctx, quotaGlobalLimit, quotaUserLimit); err != nil {
			return fmt.Errorf("failed to update limits: %w", err)
		}
		successColor.Printf("Limits updated: global=%d user=%d\n", quotaGlobalLimit, quotaUserLimit)
		return nil
	},
}

func setServiceEnabled(enabled bool) error {
	ctx := context.Background()

	app, cleanup, err := wire.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize app services: %w", err)
	}
	defer cleanup()

	if err := app.Quota.SetServiceEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("failed to update service flag: %w", err)
	}
	fmt.Printf("AI reviews are now %s\n", onOff(enabled))
	return nil
}

func printQuotaStatus(w io.Writer, userID string, s core.QuotaStatus) {
	titleColor.Fprintln(w, "Review quota")
	fmt.Fprintf(w, "  Service: %s\n", onOff(s.Enabled))
	fmt.Fprintf(w, "  Global:  %s\n", usageColor(s.GlobalUsed, s.GlobalLimit).Sprintf("%d / %d", s.GlobalUsed, s.GlobalLimit))
	fmt.Fprintf(w, "  User %s: %s\n", userID, usageColor(s.UserUsed, s.UserLimit).Sprintf("%d / %d", s.UserUsed, s.UserLimit))
}

func init() { //nolint:gochecknoinits // Cobra command registration
	quotaStatusCmd.Flags().StringVarP(&quotaUserID, "user", "u", "", "User ID to report on")
	_ = quotaStatusCmd.MarkFlagRequired("user")

	quotaLimitsCmd.Flags().Int64Var(&quotaGlobalLimit, "global", 0, "Daily limit across all users")
	quotaLimitsCmd.Flags().Int64Var(&quotaUserLimit, "user", 0, "Daily limit per user")
	_ = quotaLimitsCmd.MarkFlagRequired("global")
	_ = quotaLimitsCmd.MarkFlagRequired("user")

	quotaCmd.AddCommand(quotaStatusCmd, quotaEnableCmd, quotaDisableCmd, quotaLimitsCmd)
	rootCmd.AddCommand(quotaCmd)
}
