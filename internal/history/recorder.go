package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ryanbastic/go-pixelgrid/internal/circuitbreaker"
	"github.com/ryanbastic/go-pixelgrid/internal/metrics"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// Recorder appends events to a Log in the background. Record never blocks and
// never fails; events that cannot be queued or appended are logged, counted,
// and dropped.
type Recorder struct {
	log     Log
	breaker *circuitbreaker.Breaker
	queue   chan pixel.PlacementEvent
	timeout time.Duration
	logger  *slog.Logger
}

// NewRecorder creates a Recorder with a queue of queueSize events. Each append
// is bounded by timeout and goes through breaker.
func NewRecorder(log Log, breaker *circuitbreaker.Breaker, queueSize int, timeout time.Duration, logger *slog.Logger) *Recorder {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Recorder{
		log:     log,
		breaker: breaker,
		queue:   make(chan pixel.PlacementEvent, queueSize),
		timeout: timeout,
		logger:  logger,
	}
}

// Record enqueues ev, assigning an ID if it has none.
func (r *Recorder) Record(ev pixel.PlacementEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case r.queue <- ev:
	default:
		metrics.ObserveHistory(metrics.HistoryDropped)
		r.logger.Warn("history queue full, dropping event",
			"event_id", ev.ID,
			"x", ev.X,
			"y", ev.Y,
		)
	}
}

// Run appends queued events until ctx is cancelled, then drains whatever is
// still queued and returns.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.queue:
			r.append(ctx, ev)
		case <-ctx.Done():
			r.drain()
			return nil
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev := <-r.queue:
			r.append(context.Background(), ev)
		default:
			return
		}
	}
}

func (r *Recorder) append(ctx context.Context, ev pixel.PlacementEvent) {
	err := r.breaker.Execute(func() error {
		actx, cancel := r.withTimeout(ctx)
		defer cancel()
		return r.log.Append(actx, ev)
	})
	if err != nil {
		metrics.ObserveHistory(metrics.HistoryFailed)
		r.logger.Error("history append failed",
			"event_id", ev.ID,
			"x", ev.X,
			"y", ev.Y,
			"error", err,
		)
		return
	}
	metrics.ObserveHistory(metrics.HistoryAppended)
}

func (r *Recorder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return ctx, func() {}
}
