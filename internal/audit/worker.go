package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fkhayef/expensesplitter/internal/metrics"
)

// Worker saves events in the background so request paths never wait on
// the audit table. Events are dropped (and counted) when the buffer is full.
type Worker struct {
	eventCh chan Event
	logger  Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ Recorder = (*Worker)(nil)

func NewWorker(logger Logger, bufferSize int, m *metrics.Metrics) *Worker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				slog.Info("draining audit events before shutdown", "remaining_events", len(w.eventCh))
				for len(w.eventCh) > 0 {
					w.save(context.Background(), <-w.eventCh)
				}
				return
			case event := <-w.eventCh:
				w.save(w.ctx, event)
			}
		}
	})
}

func (w *Worker) save(ctx context.Context, event Event) {
	if err := w.logger.Save(ctx, event); err != nil {
		slog.Error("failed to save audit event", "error", err,
			"entity_type", event.EntityType, "entity_id", event.EntityID, "action", event.Action)
		return
	}
	w.metrics.AuditWritten()
}

// Record queues an event without blocking
func (w *Worker) Record(event Event) {
	select {
	case w.eventCh <- event:
	default:
		w.metrics.AuditDropped()
		slog.Warn("audit channel full, dropping event",
			"entity_type", event.EntityType, "entity_id", event.EntityID, "action", event.Action)
	}
}

// Shutdown stops the worker after saving every queued event
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}
