// Package queue wraps the SQS queue that carries run jobs from the
// control API to the worker fleet.
package queue

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one received job delivery. ReceiveCount counts every
// delivery including this one, so a first delivery carries 1.
type Message struct {
	ReceiptHandle string
	Body          []byte
	ReceiveCount  int
}

// JobQueue sends and receives run job messages.
type JobQueue struct {
	client   SQSClient
	queueURL string
}

// NewJobQueue wraps an existing client.
func NewJobQueue(client SQSClient, queueURL string) *JobQueue {
	return &JobQueue{client: client, queueURL: queueURL}
}

// NewSQSClient builds an SDK client. endpoint is optional for LocalStack
// style setups; accessKey and secretKey are optional and fall back to the
// default credential chain.
func NewSQSClient(ctx context.Context, region, endpoint, accessKey, secretKey string) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws configuration: %w", err)
	}
	client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.HTTPClient = &http.Client{}
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return client, nil
}

// Send enqueues one job body.
func (q *JobQueue) Send(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive long-polls for up to one message and returns nil when the wait
// expires empty.
func (q *JobQueue) Receive(ctx context.Context) (*Message, error) {
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     5,
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeName("ApproximateReceiveCount"),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	if len(output.Messages) == 0 {
		return nil, nil
	}
	raw := output.Messages[0]
	message := &Message{
		ReceiptHandle: aws.ToString(raw.ReceiptHandle),
		Body:          []byte(aws.ToString(raw.Body)),
		ReceiveCount:  1,
	}
	if value, ok := raw.Attributes["ApproximateReceiveCount"]; ok {
		if count, err := strconv.Atoi(value); err == nil {
			message.ReceiveCount = count
		}
	}
	return message, nil
}

// Delete acknowledges a message so it is never redelivered.
func (q *JobQueue) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// ChangeVisibility resets a message's visibility timeout, either to keep
// an in-flight job invisible or to delay redelivery of a deferred one.
func (q *JobQueue) ChangeVisibility(ctx context.Context, receiptHandle string, timeoutSeconds int) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: int32(timeoutSeconds),
	})
	if err != nil {
		return fmt.Errorf("failed to change message visibility: %w", err)
	}
	return nil
}
