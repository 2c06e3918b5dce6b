package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/learnlog/internal/wire"
)

var usageThreshold float64

type providerUsage struct {
	Provider          string  `yaml:"provider"`
	UsedToday         int64   `yaml:"used_today"`
	RequestsPerDay    int64   `yaml:"requests_per_day"`
	RequestsPerMinute int64   `yaml:"requests_per_minute"`
	Threshold         float64 `yaml:"threshold"`
	NearLimit         bool    `yaml:"near_limit"`
}

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect the model provider's request budget",
}

var ratelimitUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show how many provider calls were made today",
	RunE: func(_ *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()

		used, err := app.Limiter.DailyUsage(ctx)
		if err != nil {
			return fmt.Errorf("failed to read daily usage: %w", err)
		}
		near, err := app.Limiter.IsNearDailyLimit(ctx, usageThreshold)
		if err != nil {
			return err
		}

		limits := app.Limiter.Limits()
		u := providerUsage{
			Provider:          limits.Provider,
			UsedToday:         used,
			RequestsPerDay:    limits.RequestsPerDay,
			RequestsPerMinute: limits.RequestsPerMinute,
			Threshold:         usageThreshold,
			NearLimit:         near,
		}
		return render(os.Stdout, u, func(w io.Writer) {
			titleColor.Fprintf(w, "Provider %s\n", u.Provider)
			fmt.Fprintf(w, "  Today:  %s\n", usageColor(u.UsedToday, u.RequestsPerDay).Sprintf("%d / %d", u.UsedToday, u.RequestsPerDay))
			fmt.Fprintf(w, "  Minute: %d requests max\n", u.RequestsPerMinute)
			if u.NearLimit {
				warnColor.Fprintf(w, "  Usage is above %.0f%% of the daily limit\n", u.Threshold*100)
			}
		})
	},
}

func init() { //nolint:gochecknoinits // Cobra command registration
	ratelimitUsageCmd.Flags().Float64Var(&usageThreshold, "threshold", 0.9, "Fraction of the daily limit that counts as near")
	ratelimitCmd.AddCommand(ratelimitUsageCmd)
	rootCmd.AddCommand(ratelimitCmd)
}
