package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/marquee/internal/app"
	"github.com/zulandar/marquee/internal/config"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		noWatch    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Marquee service",
		Long:  "Connects the enabled chat platforms, serves webhooks and runs scheduled maintenance until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, !noWatch)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Marquee config file")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload library and parser settings when the config file changes")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, watch bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := app.Opts{Config: cfg, Out: cmd.OutOrStdout()}
	if watch {
		opts.ConfigPath = configPath
	}
	a, err := app.New(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return a.Run(ctx)
}
