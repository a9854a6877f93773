package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"bff-gateway/internal/client"
	"bff-gateway/internal/config"
	"bff-gateway/internal/metrics"
	"bff-gateway/internal/model"
)

const trackPath = "/api/connection-tracker/connections/track"

// SessionNotifier receives a notification for every validated session.
// Implementations must not block the caller.
type SessionNotifier interface {
	Track(ctx context.Context, ev model.ConnectionEvent)
}

type trackJob struct {
	ctx context.Context
	ev  model.ConnectionEvent
}

// ConnectionTracker posts connection events to the auth service from a
// background worker. Events that do not fit in the queue are dropped.
type ConnectionTracker struct {
	forwarder *Forwarder
	queue     chan trackJob
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewConnectionTracker creates a ConnectionTracker. Call Start before use.
func NewConnectionTracker(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ConnectionTracker, error) {
	timeout := time.Duration(cfg.Tracker.TimeoutSeconds) * time.Second
	fwd, err := NewForwarder(c, "auth", cfg.Auth.BaseURL, timeout, authDetailKeys, logger)
	if err != nil {
		return nil, fmt.Errorf("connection tracker: %w", err)
	}
	size := cfg.Tracker.QueueSize
	if size <= 0 {
		size = 1
	}
	return &ConnectionTracker{
		forwarder: fwd,
		queue:     make(chan trackJob, size),
		done:      make(chan struct{}),
		logger:    logger.With("component", "connection_tracker"),
		metrics:   m,
	}, nil
}

// Start launches the delivery worker.
func (t *ConnectionTracker) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop stops accepting events and waits for queued ones to be delivered, or
// for ctx to expire.
func (t *ConnectionTracker) Stop(ctx context.Context) error {
	t.stopOnce.Do(func() { close(t.done) })

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection tracker: %w", ctx.Err())
	}
}

// Track queues ev without blocking. The request's values (such as its
// request ID) are kept, its cancellation is not.
func (t *ConnectionTracker) Track(ctx context.Context, ev model.ConnectionEvent) {
	select {
	case <-t.done:
		t.drop(ev, "tracker stopped")
		return
	default:
	}

	select {
	case t.queue <- trackJob{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		t.drop(ev, "queue full")
	}
}

func (t *ConnectionTracker) drop(ev model.ConnectionEvent, reason string) {
	t.logger.Warn("dropping connection event", "session_id", ev.SessionID, "reason", reason)
	t.count(metrics.OutcomeDropped)
}

func (t *ConnectionTracker) run() {
	defer t.wg.Done()
	for {
		select {
		case job := <-t.queue:
			t.deliver(job)
		case <-t.done:
			for {
				select {
				case job := <-t.queue:
					t.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (t *ConnectionTracker) deliver(job trackJob) {
	_, err := t.forwarder.Forward(job.ctx, &Request{
		Method: http.MethodPost,
		Path:   trackPath,
		JSON:   job.ev,
	})
	if err != nil {
		t.logger.Warn("connection tracking failed", "session_id", job.ev.SessionID, "err", err)
		t.count(metrics.OutcomeFailure)
		return
	}
	t.count(metrics.OutcomeSuccess)
}

func (t *ConnectionTracker) count(outcome string) {
	if t.metrics != nil {
		t.metrics.TrackerEvents.WithLabelValues(outcome).Inc()
	}
}
