package cli

import (
	"github.com/spf13/cobra"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/metrics"
)

var alarmPrefix string

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "provision the CloudWatch alarms for run failures and worker errors",
	RunE:  runAlarms,
}

func init() {
	alarmsCmd.Flags().StringVar(&alarmPrefix, "prefix", "relay-inventory", "alarm name prefix")
}

func runAlarms(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	client, err := metrics.NewCloudWatchClient(ctx, cfg.AWS.Region, cfg.AWS.Endpoint, cfg.AWS.AccessKey, cfg.AWS.SecretKey)
	if err != nil {
		return err
	}
	if err := metrics.ProvisionAlarms(ctx, client, cfg.AWS.MetricsNamespace, alarmPrefix); err != nil {
		return err
	}
	common.Logger.Info("alarms provisioned in namespace ", cfg.AWS.MetricsNamespace)
	return nil
}
