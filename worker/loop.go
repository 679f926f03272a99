package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relay-commerce/relay-inventory/common"
	"github.com/relay-commerce/relay-inventory/models"
	"github.com/relay-commerce/relay-inventory/persistence"
	"github.com/relay-commerce/relay-inventory/queue"
)

// Run consumes the queue until the context is canceled. Up to
// cfg.Concurrency jobs execute in parallel; the receive loop itself is
// single-threaded.
func (w *Worker) Run(ctx context.Context) error {
	common.LogEvent(w.logger, "worker_started", map[string]interface{}{
		"concurrency":         w.cfg.Concurrency,
		"poison_max_receives": w.cfg.PoisonMaxReceives,
	})

	semaphore := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		default:
		}

		msg, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				return ctx.Err()
			}
			common.LogEvent(w.logger, "queue_receive_error", map[string]interface{}{
				"error": err.Error(),
			})
			w.metrics.RecordWorkerError(ctx, "receive")
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(msg *queue.Message) {
			defer wg.Done()
			defer func() { <-semaphore }()
			w.handleMessage(ctx, msg)
		}(msg)
	}
}

// HandleMessage processes one delivery end to end. Exported for tests;
// the receive loop is its only production caller.
func (w *Worker) HandleMessage(ctx context.Context, msg *queue.Message) {
	w.handleMessage(ctx, msg)
}

func (w *Worker) handleMessage(ctx context.Context, msg *queue.Message) {
	job, err := models.ParseRunJob(msg.Body)
	if err != nil {
		// A body that cannot name its run is poison. Leave the message so
		// the queue's redrive policy dead-letters it.
		common.LogEvent(w.logger, "poison_job", map[string]interface{}{
			"error":         err.Error(),
			"receive_count": msg.ReceiveCount,
		})
		w.metrics.RecordWorkerError(ctx, "malformed_job")
		return
	}

	if msg.ReceiveCount >= w.cfg.PoisonMaxReceives {
		w.poisonRun(ctx, job, msg)
		return
	}

	hb := w.startHeartbeat(ctx, msg.ReceiptHandle)
	err = w.runJob(ctx, job, msg)
	hb.stop()

	switch {
	case err == nil:
		w.deleteMessage(ctx, msg)
	case errors.Is(err, errDefer):
		// Leave the message; visibility expiry or the backoff brings it
		// back.
	case common.IsRetryable(err):
		common.LogEvent(w.logger, "job_retryable_error", map[string]interface{}{
			"run_id": job.RunID,
			"error":  err.Error(),
		})
		w.metrics.RecordWorkerError(ctx, "infrastructure")
	default:
		// NonRetryable: the terminal state is already written.
		w.deleteMessage(ctx, msg)
	}
}

// poisonRun fails a run whose message keeps coming back. The message is
// never deleted so the redrive policy moves it to the dead-letter queue;
// redeliveries of an already-poisoned run change nothing.
func (w *Worker) poisonRun(ctx context.Context, job *models.RunJob, msg *queue.Message) {
	common.LogEvent(w.logger, "poison_job", map[string]interface{}{
		"run_id":        job.RunID,
		"tenant_id":     job.TenantID,
		"receive_count": msg.ReceiveCount,
	})

	record, err := w.runs.GetRun(ctx, job.RunID)
	if errors.Is(err, persistence.ErrNotFound) {
		return
	}
	if err != nil {
		w.metrics.RecordWorkerError(ctx, "infrastructure")
		return
	}
	if record.Status == models.StatusFailed && record.ErrorCode == models.ErrPoisonJob {
		return
	}

	message := fmt.Sprintf("job received %d times, poison threshold is %d", msg.ReceiveCount, w.cfg.PoisonMaxReceives)
	err = w.failRun(ctx, record, models.StageQueue, models.ErrPoisonJob, message, map[string]string{}, nil)
	if common.IsRetryable(err) {
		w.metrics.RecordWorkerError(ctx, "infrastructure")
	}
}

func (w *Worker) deleteMessage(ctx context.Context, msg *queue.Message) {
	if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		common.LogEvent(w.logger, "queue_delete_error", map[string]interface{}{
			"error": err.Error(),
		})
		w.metrics.RecordWorkerError(ctx, "delete")
	}
}
