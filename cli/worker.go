package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/metrics"
	"github.com/relay-commerce/relay-inventory/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "run the queue worker",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	blobs, err := buildBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	jobs, err := buildJobQueue(ctx, cfg)
	if err != nil {
		return err
	}
	runs, tenants, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}

	var sink metrics.Sink = metrics.NoopSink{}
	if cfg.AWS.MetricsNamespace != "" {
		cwClient, err := metrics.NewCloudWatchClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
		if err != nil {
			return err
		}
		sink = metrics.NewCloudWatchSink(cwClient, cfg.AWS.MetricsNamespace)
	}

	w := worker.New(blobs, jobs, runs, tenants, sink, cfg.Worker, common.Logger)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	common.Logger.Info("worker stopped")
	return nil
}
