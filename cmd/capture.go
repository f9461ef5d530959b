package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridcap/gridcap/internal/config"
	"github.com/gridcap/gridcap/internal/log"
	"github.com/gridcap/gridcap/internal/metrics"
	"github.com/gridcap/gridcap/internal/session"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Run a capture session",
	Long: `Run a capture session against the configured receive queue until
interrupted.

Examples:
  gridcap capture -c config.yml        # capture with config.yml
  gridcap capture                      # capture with the default config path`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to init logging", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
			if err := srv.Start(); err != nil {
				exitWithError("failed to start metrics server", err)
			}
			defer srv.Stop(context.Background())
		}

		sess, err := session.New(cfg)
		if err != nil {
			exitWithError("failed to build capture session", err)
		}
		if err := sess.Run(ctx); err != nil {
			exitWithError("capture session failed", err)
		}
	},
}
