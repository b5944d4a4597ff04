package eventlogger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Worker saves events in the background so audit writes never hold up a
// ledger transaction.
type Worker struct {
	eventCh chan Event
	logger  EventLogger
	timeout time.Duration
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewWorker(logger EventLogger, bufferSize int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		timeout: 5 * time.Second,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				w.drain()
				return
			case event := <-w.eventCh:
				w.save(w.ctx, event)
			}
		}
	}()
}

func (w *Worker) save(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.logger.Save(ctx, event); err != nil {
		slog.Error("failed to save audit event", "error", err, "event_type", event.Type)
	}
}

func (w *Worker) drain() {
	slog.Info("draining audit events before shutdown", "remaining_events", len(w.eventCh))
	for {
		select {
		case event := <-w.eventCh:
			w.save(context.Background(), event)
		default:
			return
		}
	}
}

// Log queues an event. It drops the event when the buffer is full and
// reports whether it was queued.
func (w *Worker) Log(event Event) bool {
	select {
	case w.eventCh <- event:
		return true
	default:
		slog.Warn("audit channel full, dropping event", "event_type", event.Type)
		return false
	}
}

// Shutdown stops the worker after saving every queued event.
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
