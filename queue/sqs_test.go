package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testQueueURL = "https://sqs.test/queue/relay-inventory-jobs"

func TestSendAndReceive(t *testing.T) {
	ctx := context.Background()
	client := NewMockSQSClient()
	q := NewJobQueue(client, testQueueURL)

	require.NoError(t, q.Send(ctx, []byte(`{"run_id":"run-1"}`)))
	assert.True(t, client.SendMessageCalled)
	assert.Equal(t, testQueueURL, client.LastQueueURL)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, []byte(`{"run_id":"run-1"}`), msg.Body)
	assert.Equal(t, 1, msg.ReceiveCount)
	assert.NotEmpty(t, msg.ReceiptHandle)
}

func TestReceiveEmptyQueue(t *testing.T) {
	q := NewJobQueue(NewMockSQSClient(), testQueueURL)
	msg, err := q.Receive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestReceiveCountGrowsAcrossRedeliveries(t *testing.T) {
	ctx := context.Background()
	client := NewMockSQSClient()
	client.Seed(`{"run_id":"run-1"}`, 3)
	q := NewJobQueue(client, testQueueURL)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 4, msg.ReceiveCount)

	client.Release()
	msg, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, 5, msg.ReceiveCount)
}

func TestDeleteRemovesMessage(t *testing.T) {
	ctx := context.Background()
	client := NewMockSQSClient()
	client.Seed(`{"run_id":"run-1"}`, 0)
	q := NewJobQueue(client, testQueueURL)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, q.Delete(ctx, msg.ReceiptHandle))
	assert.True(t, client.DeleteMessageCalled)
	assert.Empty(t, client.Messages)

	client.Release()
	msg, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestChangeVisibility(t *testing.T) {
	ctx := context.Background()
	client := NewMockSQSClient()
	client.Seed(`{"run_id":"run-1"}`, 0)
	q := NewJobQueue(client, testQueueURL)

	msg, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg)

	require.NoError(t, q.ChangeVisibility(ctx, msg.ReceiptHandle, 30))
	assert.True(t, client.ChangeMessageVisibilityCalled)
	assert.Equal(t, int32(30), client.LastVisibilityTimeout)
}

func TestQueueErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	client := NewMockSQSClient()
	client.Err = errors.New("service unavailable")
	q := NewJobQueue(client, testQueueURL)

	assert.Error(t, q.Send(ctx, []byte("{}")))
	_, err := q.Receive(ctx)
	assert.Error(t, err)
	assert.Error(t, q.Delete(ctx, "handle-0"))
	assert.Error(t, q.ChangeVisibility(ctx, "handle-0", 10))
}
