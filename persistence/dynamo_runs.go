package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/relay-commerce/relay-inventory/models"
)

// DynamoRunStore keeps run records in a table keyed by run_id.
type DynamoRunStore struct {
	client DynamoDBClient
	table  string
}

// NewDynamoRunStore wraps an existing client.
func NewDynamoRunStore(client DynamoDBClient, table string) *DynamoRunStore {
	return &DynamoRunStore{client: client, table: table}
}

func (s *DynamoRunStore) CreateRun(ctx context.Context, record *models.RunRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put run %s: %w", record.RunID, err)
	}
	return nil
}

func (s *DynamoRunStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	output, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if len(output.Item) == 0 {
		return nil, ErrNotFound
	}
	var record models.RunRecord
	if err := attributevalue.UnmarshalMap(output.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", runID, err)
	}
	return &record, nil
}

func (s *DynamoRunStore) UpdateRun(ctx context.Context, runID, status string, update models.RunUpdate) error {
	names := map[string]string{"#status": "status"}
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
	}
	sets := []string{"#status = :status"}

	addString := func(field, value string) {
		if value == "" {
			return
		}
		placeholder := "#" + field
		names[placeholder] = field
		values[":"+field] = &types.AttributeValueMemberS{Value: value}
		sets = append(sets, fmt.Sprintf("%s = :%s", placeholder, field))
	}
	addString("stage", update.Stage)
	addString("failed_stage", update.FailedStage)
	addString("error_code", update.ErrorCode)
	addString("error_message", update.ErrorMessage)
	addString("errors_artifact_key", update.ErrorsArtifactKey)
	addString("error_report_key", update.ErrorReportKey)

	if update.StartedAt != nil {
		names["#started_at"] = "started_at"
		values[":started_at"] = &types.AttributeValueMemberS{Value: update.StartedAt.UTC().Format("2006-01-02T15:04:05.000000Z")}
		sets = append(sets, "#started_at = :started_at")
	}
	if update.FinishedAt != nil {
		names["#finished_at"] = "finished_at"
		values[":finished_at"] = &types.AttributeValueMemberS{Value: update.FinishedAt.UTC().Format("2006-01-02T15:04:05.000000Z")}
		sets = append(sets, "#finished_at = :finished_at")
	}
	if len(update.Artifacts) > 0 {
		artifacts, err := attributevalue.Marshal(update.Artifacts)
		if err != nil {
			return fmt.Errorf("failed to marshal artifacts: %w", err)
		}
		names["#artifacts"] = "artifacts"
		values[":artifacts"] = artifacts
		sets = append(sets, "#artifacts = :artifacts")
	}

	expression := "SET " + strings.Join(sets, ", ")

	var removes []string
	for _, field := range update.ClearFields {
		placeholder := "#clear_" + field
		names[placeholder] = field
		removes = append(removes, placeholder)
	}
	if len(removes) > 0 {
		expression += " REMOVE " + strings.Join(removes, ", ")
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	return nil
}

// FindRunningByTenant scans for a RUNNING run owned by the tenant. A scan
// is acceptable here because the table holds recent runs only and the
// probe tolerates stale answers.
func (s *DynamoRunStore) FindRunningByTenant(ctx context.Context, tenantID, excludeRunID string) (*models.RunRecord, error) {
	var startKey map[string]types.AttributeValue
	for {
		output, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.table),
			FilterExpression: aws.String("tenant_id = :tenant_id AND #status = :running"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":tenant_id": &types.AttributeValueMemberS{Value: tenantID},
				":running":   &types.AttributeValueMemberS{Value: models.StatusRunning},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan runs for tenant %s: %w", tenantID, err)
		}
		for _, item := range output.Items {
			var record models.RunRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run record: %w", err)
			}
			if record.RunID != excludeRunID {
				return &record, nil
			}
		}
		if len(output.LastEvaluatedKey) == 0 {
			return nil, nil
		}
		startKey = output.LastEvaluatedKey
	}
}
