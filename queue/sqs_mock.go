package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// mockMessage is one queued message with its delivery bookkeeping.
type mockMessage struct {
	body         string
	receiveCount int
	inFlight     bool
}

// MockSQSClient is an in-memory SQSClient for testing
type MockSQSClient struct {
	Messages []*mockMessage
	// Error to return from operations
	Err error
	// Track function calls
	SendMessageCalled             bool
	ReceiveMessageCalled          bool
	DeleteMessageCalled           bool
	ChangeMessageVisibilityCalled bool
	// Store last call parameters
	LastQueueURL          string
	LastReceiptHandle     string
	LastVisibilityTimeout int32
}

// NewMockSQSClient creates a new mock SQS client
func NewMockSQSClient() *MockSQSClient {
	return &MockSQSClient{}
}

// Seed enqueues a message with a preset receive count, so a later receive
// reports receiveCount+1.
func (m *MockSQSClient) Seed(body string, receiveCount int) {
	m.Messages = append(m.Messages, &mockMessage{body: body, receiveCount: receiveCount})
}

// Release makes every in-flight message receivable again, simulating a
// visibility timeout expiry.
func (m *MockSQSClient) Release() {
	for _, msg := range m.Messages {
		msg.inFlight = false
	}
}

// SendMessage mocks enqueueing a message
func (m *MockSQSClient) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.SendMessageCalled = true
	if params.QueueUrl != nil {
		m.LastQueueURL = *params.QueueUrl
	}

	if m.Err != nil {
		return nil, m.Err
	}

	m.Messages = append(m.Messages, &mockMessage{body: aws.ToString(params.MessageBody)})
	return &sqs.SendMessageOutput{}, nil
}

// ReceiveMessage mocks receiving the oldest visible message
func (m *MockSQSClient) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.ReceiveMessageCalled = true
	if params.QueueUrl != nil {
		m.LastQueueURL = *params.QueueUrl
	}

	if m.Err != nil {
		return nil, m.Err
	}

	for i, msg := range m.Messages {
		if msg.inFlight {
			continue
		}
		msg.inFlight = true
		msg.receiveCount++
		return &sqs.ReceiveMessageOutput{
			Messages: []types.Message{
				{
					Body:          aws.String(msg.body),
					ReceiptHandle: aws.String(fmt.Sprintf("handle-%d", i)),
					Attributes: map[string]string{
						"ApproximateReceiveCount": strconv.Itoa(msg.receiveCount),
					},
				},
			},
		}, nil
	}
	return &sqs.ReceiveMessageOutput{}, nil
}

// DeleteMessage mocks acknowledging a message
func (m *MockSQSClient) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.DeleteMessageCalled = true
	if params.ReceiptHandle != nil {
		m.LastReceiptHandle = *params.ReceiptHandle
	}

	if m.Err != nil {
		return nil, m.Err
	}

	var index int
	if _, err := fmt.Sscanf(aws.ToString(params.ReceiptHandle), "handle-%d", &index); err == nil && index >= 0 && index < len(m.Messages) {
		m.Messages = append(m.Messages[:index], m.Messages[index+1:]...)
	}
	return &sqs.DeleteMessageOutput{}, nil
}

// ChangeMessageVisibility mocks resetting a visibility timeout
func (m *MockSQSClient) ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	m.ChangeMessageVisibilityCalled = true
	if params.ReceiptHandle != nil {
		m.LastReceiptHandle = *params.ReceiptHandle
	}
	m.LastVisibilityTimeout = params.VisibilityTimeout

	if m.Err != nil {
		return nil, m.Err
	}
	return &sqs.ChangeMessageVisibilityOutput{}, nil
}
