// Package cli wires the relay-inventory commands: the control API server,
// the queue worker, the local runner and the alarm provisioner.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/config"
)

// cfgFile holds the path given via --config; empty means the standard
// search paths.
var cfgFile string

// RootCmd is the relay-inventory entry point.
var RootCmd = &cobra.Command{
	Use:   "relay-inventory",
	Short: "multi-tenant batch inventory synchronization service",
	Long: `relay-inventory ingests per-vendor inventory files, normalizes them to a
canonical schema, merges per-SKU offers across vendors, applies tenant
pricing rules and publishes deterministic CSV artifacts with structured
run reports.

Subcommands run the control API server, the queue worker, a local
single-run pipeline for development, and the CloudWatch alarm
provisioner.`,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/relay)")
	RootCmd.AddCommand(apiCmd)
	RootCmd.AddCommand(workerCmd)
	RootCmd.AddCommand(localRunCmd)
	RootCmd.AddCommand(alarmsCmd)
}

// Execute runs the root command.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the service configuration and applies the logging
// settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		common.Logger.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		common.Logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()
	return ctx, cancel
}
