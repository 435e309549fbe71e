// Package worker scores farmers asynchronously from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/shamba/internal/bus"
	"github.com/opensource-finance/shamba/internal/domain"
)

// DefaultScoreTimeout bounds one queued scoring run, satellite fetch included.
const DefaultScoreTimeout = 45 * time.Second

// Scorer runs one scoring invocation.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (*domain.CreditScore, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithTimeout overrides DefaultScoreTimeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// Worker consumes TopicScoreRequested and publishes score events.
type Worker struct {
	bus     domain.EventBus
	scorer  Scorer
	timeout time.Duration

	mu     sync.Mutex
	sub    domain.Subscription
	cancel context.CancelFunc

	processed, dropped, failed atomic.Int64
}

// NewWorker creates a worker; call Start to begin consuming.
func NewWorker(b domain.EventBus, scorer Scorer, opts ...Option) *Worker {
	w := &Worker{bus: b, scorer: scorer, timeout: DefaultScoreTimeout}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start subscribes to score requests. Handlers run until ctx is cancelled or
// Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return errors.New("worker already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := w.bus.Subscribe(ctx, domain.TopicScoreRequested, w.handle)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe %s: %w", domain.TopicScoreRequested, err)
	}
	w.sub, w.cancel = sub, cancel

	slog.Info("score worker started", "topic", domain.TopicScoreRequested, "timeout", w.timeout)
	return nil
}

// handle scores one command. Malformed and invalid commands are counted and
// dropped; they are never retried.
func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var cmd domain.ScoreCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		w.dropped.Add(1)
		slog.Error("dropping malformed score request", "message_id", msg.ID, "error", err)
		return nil
	}
	if cmd.RequestID == "" {
		cmd.RequestID = msg.ID
	}
	log := slog.With("request_id", cmd.RequestID, "trace_id", cmd.TraceID)

	scoreCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := w.scorer.Score(scoreCtx, cmd.Request)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		w.dropped.Add(1)
		log.Warn("dropping invalid score request", "error", err)
		return nil
	case err != nil:
		w.failed.Add(1)
		return fmt.Errorf("score %s: %w", cmd.RequestID, err)
	}

	ev := domain.ScoreEvent{RequestID: cmd.RequestID, TraceID: cmd.TraceID, Result: result}
	if err := bus.PublishScore(ctx, w.bus, ev); err != nil {
		w.failed.Add(1)
		log.Error("failed to publish score", "error", err)
		return nil
	}
	w.processed.Add(1)

	log.Info("score request processed",
		"identity", result.Identity,
		"score", result.Score,
		"approved", result.LoanRecommendation.Approved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and cancels in-flight handlers. Stopping an idle worker
// is a no-op.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub == nil {
		return nil
	}

	w.cancel()
	err := w.sub.Unsubscribe()
	w.sub, w.cancel = nil, nil

	slog.Info("score worker stopped",
		"processed", w.processed.Load(),
		"dropped", w.dropped.Load(),
		"failed", w.failed.Load(),
	)
	return err
}

// Stats is a snapshot of worker activity.
type Stats struct {
	Running   bool  `json:"running"`
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
}

// Stats returns the worker's counters.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	running := w.sub != nil
	w.mu.Unlock()
	return Stats{
		Running:   running,
		Processed: w.processed.Load(),
		Dropped:   w.dropped.Load(),
		Failed:    w.failed.Load(),
	}
}
