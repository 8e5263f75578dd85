package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/decision"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/engine"
	"github.com/opensource-finance/peregrine/internal/modelscore"
	"github.com/opensource-finance/peregrine/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *engine.Engine
	scores    *modelscore.Service
	boosts    *rules.BoostEngine
	boostPath string
	topics    config.Topics
	version   string
}

// NewHandler creates a new API handler. boosts and boostPath may be
// zero when boost rules are not configured.
func NewHandler(
	repo domain.Repository,
	cache domain.Cache,
	bus domain.EventBus,
	eng *engine.Engine,
	scores *modelscore.Service,
	boosts *rules.BoostEngine,
	boostPath string,
	topics config.Topics,
	version string,
) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    eng,
		scores:    scores,
		boosts:    boosts,
		boostPath: boostPath,
		topics:    topics,
		version:   version,
	}
}

// IngestResponse is the response for POST /ingest.
type IngestResponse struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
	TraceID string `json:"traceId,omitempty"`
}

// Ingest handles POST /ingest: the event is validated and published to
// the transactions topic for async processing by the worker.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evt, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode event",
		})
		return
	}

	// Key by account so a future partitioned bus keeps per-account order.
	if err := h.bus.Publish(ctx, h.topics.Transactions, evt.AccountID, payload); err != nil {
		slog.Error("failed to publish event", "event_id", evt.EventID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus unavailable",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, IngestResponse{
		EventID: evt.EventID,
		Status:  "accepted",
		TraceID: GetTraceID(ctx),
	})
}

// EvaluateResponse is the response for POST /evaluate.
type EvaluateResponse struct {
	DecisionID string   `json:"decisionId"`
	EventID    string   `json:"eventId"`
	Action     string   `json:"action"`
	RiskScore  float64  `json:"riskScore"`
	Reasons    []string `json:"reasons"`
	Metadata   struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Evaluate handles POST /evaluate: the event runs through the full
// pipeline synchronously and the decision is returned.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	evt, ok := h.decodeEvent(w, r)
	if !ok {
		return
	}

	outcome, err := h.engine.Process(ctx, evt)
	if err != nil {
		slog.Error("evaluation failed", "event_id", evt.EventID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrHistoryUnavailable) || errors.Is(err, domain.ErrPersistence) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	resp := EvaluateResponse{
		DecisionID: outcome.DecisionID,
		EventID:    outcome.EventID,
		Action:     outcome.Action,
		RiskScore:  outcome.RiskScore,
		Reasons:    outcome.Reasons,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// GetDecision retrieves the decision for an event.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := chi.URLParam(r, "eventID")

	if eventID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "event id is required",
		})
		return
	}

	dec, err := h.repo.GetDecisionByEvent(ctx, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get decision", "event_id", eventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get decision",
		})
		return
	}

	writeJSON(w, http.StatusOK, dec)
}

// BlacklistRequest is the request body for POST /blacklist.
type BlacklistRequest struct {
	MerchantID string `json:"merchantId"`
	Active     bool   `json:"active"`
	Reason     string `json:"reason,omitempty"`
}

// UpsertBlacklist adds or clears a merchant block rule.
func (h *Handler) UpsertBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.MerchantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "merchantId is required",
		})
		return
	}

	if err := h.repo.UpsertBlacklist(ctx, req.MerchantID, req.Active, req.Reason); err != nil {
		slog.Error("failed to upsert blacklist", "merchant_id", req.MerchantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update blacklist",
		})
		return
	}

	// Drop the cached lookup so the change is visible immediately.
	if h.cache != nil {
		_ = h.cache.Delete(ctx, "blacklist:"+req.MerchantID)
	}

	slog.Info("blacklist updated",
		"merchant_id", req.MerchantID,
		"active", req.Active,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"merchantId": req.MerchantID,
		"active":     req.Active,
	})
}

// ScoreModelRequest is the request body for POST /score/model.
type ScoreModelRequest struct {
	Event     domain.TransactionEvent `json:"event"`
	Threshold float64                 `json:"threshold,omitempty"`
}

// ScoreModel handles POST /score/model: the event is perceived and run
// through model inference, and the persisted score is returned.
func (h *Handler) ScoreModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if !h.validateEvent(w, &req.Event) {
		return
	}

	perceived, err := h.engine.Perceive(ctx, &req.Event)
	if err != nil {
		slog.Error("perception failed", "event_id", req.Event.EventID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "perception failed",
		})
		return
	}

	score, err := h.scores.Score(ctx, req.Event.EventID, perceived.Features, req.Threshold)
	if err != nil {
		slog.Error("model scoring failed", "event_id", req.Event.EventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, score)
}

// ScoreCombineRequest is the request body for POST /score/combine.
type ScoreCombineRequest struct {
	Event     domain.TransactionEvent `json:"event"`
	Threshold float64                 `json:"threshold,omitempty"`
}

// ScoreCombine handles POST /score/combine: a fresh rule score is
// blended with the event's stored model score. A missing model score
// contributes 0 to the blend.
func (h *Handler) ScoreCombine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreCombineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if !h.validateEvent(w, &req.Event) {
		return
	}

	_, ruleScore, reasons, err := h.engine.RuleScore(ctx, &req.Event)
	if err != nil {
		slog.Error("rule scoring failed", "event_id", req.Event.EventID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule scoring failed",
		})
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = modelscore.DefaultThreshold
	}

	score, err := h.scores.Latest(ctx, req.Event.EventID)
	if err != nil {
		slog.Error("model score lookup failed", "event_id", req.Event.EventID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "model score lookup failed",
		})
		return
	}

	var modelScore float64
	if score != nil {
		modelScore = score.RiskScore
		if factors, ok := score.Explain["top_factors"]; ok {
			reasons = append(reasons, fmt.Sprintf("Model factors: %v", factors))
		}
	}

	result := decision.Combine(ruleScore, modelScore, threshold, reasons)
	writeJSON(w, http.StatusOK, result)
}

// ReloadBoosts re-reads the boost rules file into the scorer.
func (h *Handler) ReloadBoosts(w http.ResponseWriter, r *http.Request) {
	if h.boosts == nil || h.boostPath == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "boost rules not configured",
		})
		return
	}

	if err := rules.LoadBoosts(h.boosts, h.boostPath); err != nil {
		slog.Error("failed to reload boosts", "path", h.boostPath, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload boosts: " + err.Error(),
		})
		return
	}

	count := h.boosts.Count()
	slog.Info("boost rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "boost rules reloaded",
		"count":   count,
	})
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
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeEvent parses and validates a transaction event from the body.
// Returns false after writing an error response.
func (h *Handler) decodeEvent(w http.ResponseWriter, r *http.Request) (*domain.TransactionEvent, bool) {
	var evt domain.TransactionEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}
	if !h.validateEvent(w, &evt) {
		return nil, false
	}
	return &evt, true
}

func (h *Handler) validateEvent(w http.ResponseWriter, evt *domain.TransactionEvent) bool {
	if evt.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountId is required",
		})
		return false
	}
	if evt.Amount <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "amount must be positive",
		})
		return false
	}
	if evt.EventID == "" {
		evt.EventID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
