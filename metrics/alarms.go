package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// ProvisionAlarms creates or updates the fleet-wide alarms on the
// namespace: repeated run failures and any worker error. Re-running is
// idempotent because PutMetricAlarm overwrites by name.
func ProvisionAlarms(ctx context.Context, client CloudWatchClient, namespace, alarmPrefix string) error {
	alarms := []*cloudwatch.PutMetricAlarmInput{
		{
			AlarmName:          aws.String(alarmPrefix + "-run-failures"),
			AlarmDescription:   aws.String("Inventory sync runs are failing"),
			Namespace:          aws.String(namespace),
			MetricName:         aws.String(MetricRunFailed),
			Statistic:          types.StatisticSum,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(3),
			Threshold:          aws.Float64(3),
			ComparisonOperator: types.ComparisonOperatorGreaterThanOrEqualToThreshold,
			TreatMissingData:   aws.String("notBreaching"),
		},
		{
			AlarmName:          aws.String(alarmPrefix + "-worker-errors"),
			AlarmDescription:   aws.String("Inventory sync workers are reporting errors"),
			Namespace:          aws.String(namespace),
			MetricName:         aws.String(MetricWorkerError),
			Statistic:          types.StatisticSum,
			Period:             aws.Int32(300),
			EvaluationPeriods:  aws.Int32(1),
			Threshold:          aws.Float64(1),
			ComparisonOperator: types.ComparisonOperatorGreaterThanOrEqualToThreshold,
			TreatMissingData:   aws.String("notBreaching"),
		},
	}
	for _, alarm := range alarms {
		if _, err := client.PutMetricAlarm(ctx, alarm); err != nil {
			return fmt.Errorf("failed to put alarm %s: %w", aws.ToString(alarm.AlarmName), err)
		}
	}
	return nil
}
