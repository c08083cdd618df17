package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ccsentinel/internal/models"
	"ccsentinel/internal/services"
	"ccsentinel/internal/services/usage"
	"ccsentinel/internal/version"
)

func newUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Fetch current usage for the active account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := services.NewManager(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			active := manager.Accounts().GetActive()
			if active == nil {
				return fmt.Errorf("no accounts configured; add one with 'ccsentinel accounts add'")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			snap, err := manager.Fetcher().Fetch(ctx, active, manager.Accounts().GetToken(active.ID))
			if err != nil {
				var authErr *usage.AuthError
				if errors.As(err, &authErr) {
					return fmt.Errorf("credential for %s was rejected (HTTP %d)",
						active.DisplayName(), authErr.StatusCode)
				}
				return err
			}
			if snap == nil {
				return fmt.Errorf("no usage data available for %s", active.DisplayName())
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account: %s\n", active.DisplayName())
			fmt.Fprintf(out, "Session: %.1f%%", snap.SessionPercent)
			if !snap.SessionResetAt.IsZero() {
				fmt.Fprintf(out, " (resets %s)", snap.SessionResetAt.Local().Format(time.RFC822))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Weekly:  %.1f%%", snap.WeeklyPercent)
			if !snap.WeeklyResetAt.IsZero() {
				fmt.Fprintf(out, " (resets %s)", snap.WeeklyResetAt.Local().Format(time.RFC822))
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Source:  %s\n", snap.Source)

			session, weekly, err := manager.GetForecast(active.ID)
			if err == nil {
				printForecast(cmd, "session", session)
				printForecast(cmd, "weekly", weekly)
			}
			return nil
		},
	}
}

func printForecast(cmd *cobra.Command, label string, f *models.Forecast) {
	if f == nil || f.RatePerHour <= 0 {
		return
	}
	out := cmd.OutOrStdout()
	if f.WillDeplete {
		fmt.Fprintf(out, "Forecast: %s window depletes around %s (%.1f%%/h, confidence %s)\n",
			label, f.DepletionAt.Local().Format(time.RFC822), f.RatePerHour, f.Confidence)
		return
	}
	fmt.Fprintf(out, "Forecast: %s window burning %.1f%%/h, reset arrives first (confidence %s)\n",
		label, f.RatePerHour, f.Confidence)
}

func newHistoryCmd() *cobra.Command {
	var rangeName string
	cmd := &cobra.Command{
		Use:   "history [account]",
		Short: "Show recorded usage statistics and recent switches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeRange, err := parseTimeRange(rangeName)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager, err := services.NewManager(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = manager.Close() }()

			var account *models.Account
			if len(args) == 1 {
				account, err = resolveAccount(manager.Accounts(), args[0])
				if err != nil {
					return err
				}
			} else {
				account = manager.Accounts().GetActive()
				if account == nil {
					return fmt.Errorf("no accounts configured")
				}
			}

			stats, err := manager.GetAccountHistory(account.ID, timeRange)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Account: %s (%s)\n", account.DisplayName(), timeRange)
			if !stats.HasData() {
				fmt.Fprintln(out, "No recorded usage in this range.")
			} else {
				fmt.Fprintf(out, "Data points:  %d\n", stats.DataPoints)
				fmt.Fprintf(out, "Session avg:  %.1f%%  peak: %.1f%%\n",
					stats.AvgSessionPercent, stats.PeakSessionPercent)
				fmt.Fprintf(out, "Weekly avg:   %.1f%%  peak: %.1f%%\n",
					stats.AvgWeeklyPercent, stats.PeakWeeklyPercent)
				fmt.Fprintf(out, "Switched away %d times, switched to %d times\n",
					stats.SwapsFrom, stats.SwapsTo)
			}

			swaps, err := manager.GetRecentSwaps(10)
			if err != nil {
				return err
			}
			if len(swaps) > 0 {
				fmt.Fprintln(out, "\nRecent switches:")
				for _, swap := range swaps {
					fmt.Fprintf(out, "  %s  %s -> %s (%s)\n",
						swap.Timestamp.Local().Format("2006-01-02 15:04"),
						swap.FromAccount, swap.ToAccount, swap.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rangeName, "range", "7d", "time range: 24h, 7d, 30d, or all")
	return cmd
}

func parseTimeRange(name string) (models.TimeRange, error) {
	switch name {
	case "24h":
		return models.TimeRange24Hours, nil
	case "7d":
		return models.TimeRange7Days, nil
	case "30d":
		return models.TimeRange30Days, nil
	case "all":
		return models.TimeRangeAllTime, nil
	default:
		return 0, fmt.Errorf("unknown time range %q (expected 24h, 7d, 30d, or all)", name)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
