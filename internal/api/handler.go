package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/shamba/internal/bus"
	"github.com/opensource-finance/shamba/internal/cache"
	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/fraud"
	"github.com/opensource-finance/shamba/internal/repository"
	"github.com/opensource-finance/shamba/internal/velocity"
)

// Scorer runs one scoring invocation.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (*domain.CreditScore, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	scorer  Scorer
	engine  *fraud.Engine
	limiter *velocity.Limiter
	version string
}

// NewHandler creates a new API handler. repo, cache, eventBus and limiter
// may be nil; the endpoints that need them answer 503.
func NewHandler(repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, scorer Scorer, engine *fraud.Engine, limiter *velocity.Limiter, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     eventBus,
		scorer:  scorer,
		engine:  engine,
		limiter: limiter,
		version: version,
	}
}

// ScoreRequestBody is the request body for POST /score.
type ScoreRequestBody struct {
	Identity      string   `json:"identity"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	CropType      string   `json:"cropType"`
	FarmSizeAcres *float64 `json:"farmSizeAcres,omitempty"`
}

func (b ScoreRequestBody) toRequest() domain.ScoreRequest {
	return domain.ScoreRequest{
		Identity:      b.Identity,
		Location:      domain.Location{Latitude: b.Latitude, Longitude: b.Longitude},
		CropType:      b.CropType,
		FarmSizeAcres: b.FarmSizeAcres,
	}
}

// ResponseMetadata is attached to every score response.
type ResponseMetadata struct {
	RequestID string `json:"requestId"`
	TraceID   string `json:"traceId"`
	TotalMs   int64  `json:"totalMs"`
	Version   string `json:"version"`
}

// ScoreResponse is the response for the scoring endpoints.
type ScoreResponse struct {
	*domain.CreditScore
	Metadata ResponseMetadata `json:"metadata"`
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var body ScoreRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	h.score(w, r, body.toRequest())
}

// ScoreFarmer handles POST /farmers/{phone}/score by scoring a stored profile.
func (h *Handler) ScoreFarmer(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	farmer, err := h.repo.GetFarmer(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, err, "failed to load farmer")
		return
	}

	h.score(w, r, farmer.ScoreRequest())
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request, req domain.ScoreRequest) {
	start := time.Now()
	ctx := r.Context()

	if err := req.Validate(); err != nil {
		writeError(w, err, "invalid score request")
		return
	}

	if err := h.limiter.Allow(ctx, req.Identity); err != nil {
		writeError(w, err, "score request throttled")
		return
	}

	result, err := h.scorer.Score(ctx, req)
	if err != nil {
		writeError(w, err, "failed to score farmer")
		return
	}

	requestID := GetRequestID(ctx)
	traceID := GetTraceID(ctx)

	if h.bus != nil {
		ev := domain.ScoreEvent{
			RequestID: requestID,
			TraceID:   traceID,
			Result:    result,
		}
		if err := bus.PublishScore(ctx, h.bus, ev); err != nil {
			slog.Error("failed to publish score event",
				"request_id", requestID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, ScoreResponse{
		CreditScore: result,
		Metadata: ResponseMetadata{
			RequestID: requestID,
			TraceID:   traceID,
			TotalMs:   time.Since(start).Milliseconds(),
			Version:   h.version,
		},
	})
}

// EnqueueScore handles POST /score/async by publishing a score request for
// the background worker.
func (h *Handler) EnqueueScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var body ScoreRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	req := body.toRequest()
	if err := req.Validate(); err != nil {
		writeError(w, err, "invalid score request")
		return
	}
	if err := h.limiter.Allow(ctx, req.Identity); err != nil {
		writeError(w, err, "score request throttled")
		return
	}

	requestID := GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	payload, err := json.Marshal(domain.ScoreCommand{
		RequestID: requestID,
		TraceID:   GetTraceID(ctx),
		Request:   req,
	})
	if err != nil {
		writeError(w, err, "failed to encode score request")
		return
	}

	if err := h.bus.Publish(ctx, domain.TopicScoreRequested, payload); err != nil {
		writeError(w, err, "failed to enqueue score request")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": requestID,
		"status":    "queued",
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
	resp := map[string]any{
		"ready":      true,
		"fraudRules": h.engine.RulesCount(),
	}
	if s, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
		resp["cache"] = s.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateFarmer handles POST /farmers.
func (h *Handler) CreateFarmer(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var farmer domain.Farmer
	if err := json.NewDecoder(r.Body).Decode(&farmer); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.repo.SaveFarmer(r.Context(), &farmer); err != nil {
		writeError(w, err, "failed to save farmer")
		return
	}

	slog.Info("farmer saved", "phone", farmer.Phone, "crop", farmer.CropType)
	writeJSON(w, http.StatusCreated, farmer)
}

// GetFarmer handles GET /farmers/{phone}.
func (h *Handler) GetFarmer(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	farmer, err := h.repo.GetFarmer(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		writeError(w, err, "failed to load farmer")
		return
	}

	writeJSON(w, http.StatusOK, farmer)
}

// ListFarmers handles GET /farmers with an optional ?limit=.
func (h *Handler) ListFarmers(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit := repository.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	farmers, err := h.repo.ListFarmers(r.Context(), limit)
	if err != nil {
		writeError(w, err, "failed to list farmers")
		return
	}
	if farmers == nil {
		farmers = []*domain.Farmer{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"farmers": farmers,
		"count":   len(farmers),
	})
}

// ListFraudRules returns the loaded fraud rules in evaluation order.
func (h *Handler) ListFraudRules(w http.ResponseWriter, r *http.Request) {
	rules := h.engine.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// CreateFraudRule validates and stores an operator rule. It takes effect on
// the next reload.
func (h *Handler) CreateFraudRule(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var rule domain.FraudRuleConfig
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	rule.Builtin = false

	if err := h.engine.ValidateRule(&rule); err != nil {
		writeError(w, err, "invalid fraud rule")
		return
	}

	if err := h.repo.SaveFraudRule(r.Context(), &rule); err != nil {
		writeError(w, err, "failed to save fraud rule")
		return
	}

	slog.Info("fraud rule saved", "rule_id", rule.ID, "enabled", rule.Enabled)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule saved. Call POST /fraud-rules/reload to activate.",
	})
}

// ReloadFraudRules reloads operator rules from the repository.
func (h *Handler) ReloadFraudRules(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	count, err := h.engine.LoadFromStore(r.Context(), h.repo)
	if err != nil {
		slog.Error("fraud rule reload incomplete", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "rules reloaded with errors",
			"count":   count,
			"error":   err.Error(),
		})
		return
	}

	slog.Info("fraud rules reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   count,
	})
}

// writeError maps sentinel errors to status codes. Unexpected errors are
// logged and reported as 500 with msg.
func writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, velocity.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, bus.ErrBackpressure):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scoring queue is full"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled"})
	default:
		slog.Error(msg, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
	}
}

// writeJSON encodes data before writing the header, so an unencodable value
// becomes a 500 instead of an empty response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
