package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ccsentinel/internal/logger"
	"ccsentinel/internal/services"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the usage monitor in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			manager, err := services.NewManager(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}
			defer func() {
				if closeErr := manager.Close(); closeErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: error closing services: %v\n", closeErr)
				}
			}()

			manager.Start()
			logger.Info("ccsentinel running",
				"accounts", manager.Accounts().Count(),
				"interval", cfg.AutoSwitch.UsageCheckInterval,
				"proactive", cfg.AutoSwitch.ProactiveSwapEnabled)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigChan:
				logger.Info("shutting down", "signal", sig.String())
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}
