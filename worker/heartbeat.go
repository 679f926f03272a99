package worker

import (
	"context"
	"time"

	"github.com/relay-commerce/relay-inventory/common"
)

// heartbeat keeps an in-flight message invisible while its job runs.
type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startHeartbeat immediately extends the message's visibility to the full
// timeout, then re-extends on every tick until stopped. Extension errors
// are logged and counted but never fail the job.
func (w *Worker) startHeartbeat(ctx context.Context, receiptHandle string) *heartbeat {
	hbCtx, cancel := context.WithCancel(ctx)
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}

	extend := func() {
		if err := w.queue.ChangeVisibility(hbCtx, receiptHandle, w.cfg.VisibilityTimeoutSeconds); err != nil {
			common.LogEvent(w.logger, "heartbeat_error", map[string]interface{}{
				"error": err.Error(),
			})
			w.metrics.RecordWorkerError(hbCtx, "heartbeat")
		}
	}
	extend()

	go func() {
		defer close(hb.done)
		ticker := time.NewTicker(time.Duration(w.cfg.VisibilityHeartbeatSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				extend()
			}
		}
	}()
	return hb
}

// stop halts the heartbeat and waits for the goroutine to exit.
func (hb *heartbeat) stop() {
	hb.cancel()
	<-hb.done
}
