// Package main is the entry point for the ccsentinel daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ccsentinel/internal/config"
	"ccsentinel/internal/logger"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ccsentinel",
		Short:         "Claude usage monitor with proactive account switching",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newAccountsCmd())
	root.AddCommand(newUsageCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// loadConfig loads configuration and applies the configured log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}
