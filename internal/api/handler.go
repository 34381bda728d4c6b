package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ensemble"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Error messages returned for unexpected failures.
const (
	msgDetectFailed = "Failed to process fraud detection request"
	msgBatchFailed  = "Failed to process batch fraud detection request"
	msgInvalidJSON  = "Invalid JSON request body"
	msgKeyInFlight  = "A request with this Idempotency-Key is still in progress"
)

// Scorer is the detection core served by the API.
type Scorer interface {
	Detect(ctx context.Context, tx *domain.TransactionInput) (*domain.FraudDetectionResult, error)
	DetectBatch(ctx context.Context, txs []domain.TransactionInput) (*domain.BatchResult, error)
	Members() []ensemble.Member
	Uncertainty() float64
	Workers() int
}

// Handler holds dependencies for API handlers.
type Handler struct {
	scorer  Scorer
	engine  *rules.Engine
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new API handler. repo, cache and bus may be nil.
func NewHandler(scorer Scorer, engine *rules.Engine, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		scorer:  scorer,
		engine:  engine,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

// DetectFraud handles POST /detect-fraud.
func (h *Handler) DetectFraud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var tx domain.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	result, err := h.scorer.Detect(ctx, &tx)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransaction) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("fraud detection failed",
			"tenant_id", GetTenantID(ctx),
			"request_id", GetRequestID(ctx),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgDetectFailed)
		return
	}

	h.publish(ctx, domain.DetectionEvent{Result: result})
	writeJSON(w, http.StatusOK, result)
}

// DetectFraudBatch handles POST /detect-fraud/batch.
func (h *Handler) DetectFraudBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	raw := bytes.TrimSpace(req.Transactions)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, domain.ReasonNotArray)
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		writeError(w, http.StatusBadRequest, domain.ReasonNotArray)
		return
	}

	txs, decodeErrs := decodeTransactions(items)

	batch, err := h.scorer.DetectBatch(ctx, txs)
	if err != nil {
		var invalid *domain.InvalidBatchError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Reason)
			return
		}
		slog.Error("batch fraud detection failed",
			"tenant_id", GetTenantID(ctx),
			"request_id", GetRequestID(ctx),
			"batch_size", len(txs),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, msgBatchFailed)
		return
	}

	for i, msg := range decodeErrs {
		batch.Results[i].Result = nil
		batch.Results[i].Error = msg
	}

	h.publish(ctx, domain.DetectionEvent{Batch: batch})
	writeJSON(w, http.StatusOK, batch)
}

// decodeTransactions decodes each batch element on its own so one malformed
// element becomes a per-item error instead of failing the batch.
func decodeTransactions(items []json.RawMessage) ([]domain.TransactionInput, map[int]string) {
	txs := make([]domain.TransactionInput, len(items))
	errs := make(map[int]string)
	for i, item := range items {
		if err := json.Unmarshal(item, &txs[i]); err != nil {
			txs[i] = domain.TransactionInput{}
			errs[i] = fmt.Sprintf("Invalid transaction: %v", err)
		}
	}
	return txs, errs
}

// publish emits the detection events when a bus is configured.
func (h *Handler) publish(ctx context.Context, event domain.DetectionEvent) {
	if h.bus == nil {
		return
	}
	event.RequestID = GetRequestID(ctx)
	event.TenantID = GetTenantID(ctx)
	event.Timestamp = time.Now().UnixNano()

	if err := bus.PublishDetection(ctx, h.bus, event); err != nil {
		slog.Warn("failed to publish detection event",
			"tenant_id", event.TenantID,
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// ModelsResponse describes the configured ensemble.
type ModelsResponse struct {
	Models               []ensemble.Member `json:"models"`
	UncertaintyAmplitude float64           `json:"uncertainty_amplitude"`
	Workers              int               `json:"workers"`
}

// ListModels handles GET /models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelsResponse{
		Models:               h.scorer.Members(),
		UncertaintyAmplitude: h.scorer.Uncertainty(),
		Workers:              h.scorer.Workers(),
	})
}

// ListIndicators handles GET /indicators. Built-ins come first, in evaluation order.
func (h *Handler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	indicators := h.engine.Indicators()
	writeJSON(w, http.StatusOK, map[string]any{
		"indicators": indicators,
		"count":      len(indicators),
	})
}

// GetIndicator handles GET /indicators/{id}.
func (h *Handler) GetIndicator(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, ind := range h.engine.Indicators() {
		if ind.ID == id {
			writeJSON(w, http.StatusOK, ind)
			return
		}
	}

	// Disabled indicators are persisted but not loaded.
	if h.repo != nil && !rules.IsBuiltin(id) {
		ind, err := h.repo.GetIndicator(r.Context(), domain.GlobalTenantID, id)
		if err == nil {
			writeJSON(w, http.StatusOK, ind)
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get indicator", "indicator_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get indicator")
			return
		}
	}

	writeError(w, http.StatusNotFound, "indicator not found")
}

// CreateIndicatorRequest is the request body for POST /indicators.
type CreateIndicatorRequest struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Expression  string `json:"expression"`
	Position    int    `json:"position"`
	Enabled     *bool  `json:"enabled"`
}

// CreateIndicator handles POST /indicators. The expression is compiled before it is saved.
func (h *Handler) CreateIndicator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "indicator storage not configured")
		return
	}

	var req CreateIndicatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	req.Label = strings.TrimSpace(req.Label)
	req.Expression = strings.TrimSpace(req.Expression)
	if req.Label == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "label and expression are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if rules.IsBuiltin(req.ID) {
		writeError(w, http.StatusBadRequest, "indicator IDs starting with "+rules.BuiltinPrefix+" are reserved")
		return
	}

	ind := &domain.Indicator{
		ID:          req.ID,
		Label:       req.Label,
		Description: req.Description,
		Expression:  req.Expression,
		Position:    req.Position,
		Enabled:     req.Enabled == nil || *req.Enabled,
	}

	if err := h.engine.Validate(ind); err != nil {
		writeError(w, http.StatusBadRequest, "invalid indicator: "+err.Error())
		return
	}

	if err := h.repo.SaveIndicator(ctx, domain.GlobalTenantID, ind); err != nil {
		slog.Error("failed to save indicator", "indicator_id", ind.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save indicator")
		return
	}

	if _, err := h.reload(ctx); err != nil {
		slog.Error("failed to reload indicators", "error", err)
		writeError(w, http.StatusInternalServerError, "indicator saved but reload failed")
		return
	}

	slog.Info("indicator saved",
		"indicator_id", ind.ID,
		"label", ind.Label,
		"enabled", ind.Enabled,
	)

	writeJSON(w, http.StatusCreated, ind)
}

// DeleteIndicator handles DELETE /indicators/{id}. Built-in indicators cannot be removed.
func (h *Handler) DeleteIndicator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if rules.IsBuiltin(id) {
		writeError(w, http.StatusForbidden, "built-in indicators cannot be removed")
		return
	}
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "indicator storage not configured")
		return
	}

	if err := h.repo.DeleteIndicator(ctx, domain.GlobalTenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "indicator not found")
			return
		}
		slog.Error("failed to delete indicator", "indicator_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete indicator")
		return
	}

	if _, err := h.reload(ctx); err != nil {
		slog.Error("failed to reload indicators", "error", err)
		writeError(w, http.StatusInternalServerError, "indicator deleted but reload failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"deleted": id,
	})
}

// ReloadIndicators handles POST /indicators/reload.
func (h *Handler) ReloadIndicators(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "indicator storage not configured")
		return
	}

	n, err := h.reload(r.Context())
	if err != nil {
		slog.Error("failed to reload indicators", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload indicators")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"custom": n,
		"total":  h.engine.Count(),
	})
}

func (h *Handler) reload(ctx context.Context) (int, error) {
	n, err := h.engine.LoadFrom(ctx, h.repo)
	if err != nil {
		return 0, err
	}
	metrics.LoadedIndicators.Set(float64(h.engine.Count()))
	return n, nil
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"ready": "false",
				"error": "repository unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
