package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hetangai/mediaqueue/internal/log"
	"github.com/hetangai/mediaqueue/internal/taskqueue/metrics"
)

// heartbeat renews a lease on a ticker until stopped. It is always stopped
// deterministically before the owning task is released, so a slow release
// never races a heartbeat tick.
type heartbeat struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func (e *Executor[T]) startHeartbeat(ctx context.Context, taskID string, logger zerolog.Logger) *heartbeat {
	hb := &heartbeat{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(hb.doneCh)
		ticker := time.NewTicker(e.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hb.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := e.store.Heartbeat(ctx, e.kind, taskID, e.cfg.WorkerID, time.Now())
				if err != nil {
					metrics.RecordHeartbeatFailure(string(e.kind), "store_error")
					logger.Warn().Str(log.FieldTaskID, taskID).Err(err).Msg("heartbeat failed")
					continue
				}
				if !ok {
					metrics.RecordHeartbeatFailure(string(e.kind), "lease_lost")
					logger.Warn().Str(log.FieldTaskID, taskID).Msg("heartbeat found lease no longer owned")
					return
				}
			}
		}
	}()

	return hb
}

// stop signals the heartbeat goroutine to exit and waits for it to finish,
// so the caller can safely release the task right afterward.
func (hb *heartbeat) stop() {
	close(hb.stopCh)
	<-hb.doneCh
}
