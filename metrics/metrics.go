// Package metrics emits run-outcome and worker-health metrics.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/relay-commerce/relay-inventory/common"
)

// Metric names.
const (
	MetricRunFailed   = "RunFailed"
	MetricWorkerError = "WorkerError"
)

// Sink receives metric observations. Emission failures are logged, never
// propagated; metrics must not change run outcomes.
type Sink interface {
	// RecordRunOutcome emits RunFailed with value 1 on failure and 0 on
	// success, once with the tenant_id dimension and once without so
	// fleet-wide alarms see every run.
	RecordRunOutcome(ctx context.Context, tenantID string, failed bool)
	// RecordWorkerError emits WorkerError tagged with a coarse error
	// type.
	RecordWorkerError(ctx context.Context, errorType string)
}

// CloudWatchClient is the subset of the CloudWatch API the sink uses.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
}

// NewCloudWatchClient builds an SDK client. endpoint, accessKey and
// secretKey are optional.
func NewCloudWatchClient(ctx context.Context, region, endpoint, accessKey, secretKey string) (*cloudwatch.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := cloudwatch.NewFromConfig(cfg, func(o *cloudwatch.Options) {
		o.HTTPClient = &http.Client{}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, nil
}

// CloudWatchSink publishes to a CloudWatch namespace.
type CloudWatchSink struct {
	client    CloudWatchClient
	namespace string
}

func NewCloudWatchSink(client CloudWatchClient, namespace string) *CloudWatchSink {
	return &CloudWatchSink{client: client, namespace: namespace}
}

func (s *CloudWatchSink) put(ctx context.Context, data []types.MetricDatum) {
	_, err := s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	})
	if err != nil {
		common.LogEvent(common.Logger, "metric_emit_failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *CloudWatchSink) RecordRunOutcome(ctx context.Context, tenantID string, failed bool) {
	value := 0.0
	if failed {
		value = 1.0
	}
	now := time.Now().UTC()
	s.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String(MetricRunFailed),
			Value:      aws.Float64(value),
			Timestamp:  aws.Time(now),
			Dimensions: []types.Dimension{
				{Name: aws.String("tenant_id"), Value: aws.String(tenantID)},
			},
		},
		{
			MetricName: aws.String(MetricRunFailed),
			Value:      aws.Float64(value),
			Timestamp:  aws.Time(now),
		},
	})
}

func (s *CloudWatchSink) RecordWorkerError(ctx context.Context, errorType string) {
	s.put(ctx, []types.MetricDatum{
		{
			MetricName: aws.String(MetricWorkerError),
			Value:      aws.Float64(1.0),
			Timestamp:  aws.Time(time.Now().UTC()),
			Dimensions: []types.Dimension{
				{Name: aws.String("error_type"), Value: aws.String(errorType)},
			},
		},
	})
}

// NoopSink drops every observation. Used by the local runner.
type NoopSink struct{}

func (NoopSink) RecordRunOutcome(ctx context.Context, tenantID string, failed bool) {}
func (NoopSink) RecordWorkerError(ctx context.Context, errorType string)           {}

// Outcome is one recorded run outcome.
type Outcome struct {
	TenantID string
	Failed   bool
}

// RecordingSink captures observations for assertions in tests.
type RecordingSink struct {
	mu           sync.Mutex
	Outcomes     []Outcome
	WorkerErrors []string
}

func (s *RecordingSink) RecordRunOutcome(ctx context.Context, tenantID string, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Outcomes = append(s.Outcomes, Outcome{TenantID: tenantID, Failed: failed})
}

func (s *RecordingSink) RecordWorkerError(ctx context.Context, errorType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WorkerErrors = append(s.WorkerErrors, errorType)
}
