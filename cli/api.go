package cli

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/relay-commerce/relay-inventory/api"
	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/config"
	"github.com/relay-commerce/relay-inventory/persistence"
	"github.com/relay-commerce/relay-inventory/queue"
	"github.com/relay-commerce/relay-inventory/storage"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "run the control API server",
	RunE:  runAPI,
}

// buildBlobStore constructs the S3 client and its presigner from shared
// AWS settings.
func buildBlobStore(ctx context.Context, cfg *config.Config) (*storage.BlobStore, error) {
	client, err := storage.NewS3Client(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		return nil, err
	}
	return storage.NewBlobStore(client, s3.NewPresignClient(client), cfg.AWS.S3Bucket), nil
}

func buildJobQueue(ctx context.Context, cfg *config.Config) (*queue.JobQueue, error) {
	client, err := queue.NewSQSClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		return nil, err
	}
	return queue.NewJobQueue(client, cfg.AWS.QueueURL), nil
}

func buildStores(ctx context.Context, cfg *config.Config) (persistence.RunStore, persistence.TenantStore, error) {
	client, err := persistence.NewDynamoDBClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		return nil, nil, err
	}
	runs := persistence.NewDynamoRunStore(client, cfg.AWS.RunsTable)
	tenants := persistence.NewDynamoTenantStore(client, cfg.AWS.TenantsTable)
	return runs, tenants, nil
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	server := api.NewServer(runs, tenants, jobs, blobs, cfg.Server)
	go func() {
		if err := server.Start(); err != nil {
			common.Logger.Error("server stopped: ", err)
			cancel()
		}
	}()

	<-ctx.Done()
	common.Logger.Info("shutting down api server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
