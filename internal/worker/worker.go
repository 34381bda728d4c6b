// Package worker scores detection requests received from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scorer is the part of the detector the worker drives.
type Scorer interface {
	Detect(ctx context.Context, tx *domain.TransactionInput) (*domain.FraudDetectionResult, error)
	DetectBatch(ctx context.Context, txs []domain.TransactionInput) (*domain.BatchResult, error)
}

var (
	// ErrEmptyRequest is returned for a request that carries neither a transaction nor a batch.
	ErrEmptyRequest = errors.New("detection request carries no transactions")

	// ErrStopped is returned for deliveries that arrive after Stop.
	ErrStopped = errors.New("worker stopped")
)

// Worker consumes TopicDetectionRequested and publishes the outcomes.
type Worker struct {
	bus    domain.EventBus
	scorer Scorer
	now    func() time.Time

	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	wg            sync.WaitGroup // in-flight requests; Add only under mu while !stopped
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits consumption to these tenants; empty subscribes to every tenant.
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, scorer Scorer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    b,
		scorer: scorer,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to detection requests for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{bus.AnyTenant}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDetectionRequested, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	if w.SubscriptionCount() == 0 {
		return fmt.Errorf("worker: no subscriptions for %d tenant(s)", len(tenants))
	}

	slog.Info("workers started",
		"tenant_count", len(tenants),
		"topic", domain.TopicDetectionRequested,
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	var req domain.DetectionRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse detection request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if req.TenantID == "" {
		req.TenantID = msg.TenantID
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	return w.Process(ctx, &req)
}

// Process scores one request and publishes the outcome with bus.PublishDetection.
// The returned error reports publish failures only; scoring failures travel in the event.
func (w *Worker) Process(ctx context.Context, req *domain.DetectionRequest) error {
	start := w.now()
	event := domain.DetectionEvent{
		RequestID: req.RequestID,
		TenantID:  req.TenantID,
	}

	var procErr error
	switch {
	case req.Transaction != nil:
		event.Result, procErr = w.scorer.Detect(ctx, req.Transaction)
	case req.Transactions != nil:
		event.Batch, procErr = w.scorer.DetectBatch(ctx, req.Transactions)
	default:
		procErr = ErrEmptyRequest
	}
	if procErr != nil {
		event.Error = procErr.Error()
		slog.Warn("detection request failed",
			"request_id", req.RequestID,
			"tenant_id", req.TenantID,
			"error", procErr,
		)
	}
	event.Timestamp = w.now().UnixNano()

	if err := bus.PublishDetection(ctx, w.bus, event); err != nil {
		slog.Error("failed to publish detection result",
			"request_id", req.RequestID,
			"error", err,
		)
		return err
	}

	slog.Info("detection request processed",
		"request_id", req.RequestID,
		"tenant_id", req.TenantID,
		"failed", procErr != nil,
		"duration_ms", w.now().Sub(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes and waits for in-flight requests.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	w.stopped = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (w *Worker) SubscriptionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscriptions)
}
