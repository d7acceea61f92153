package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/overlay"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// resultCacheTTL bounds how long a decision stays hot for the read path.
const resultCacheTTL = 15 * time.Minute

// submissionWindow is the rolling window for the submission counter.
const submissionWindow = time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	repo          domain.Repository
	cache         domain.Cache
	bus           domain.EventBus
	engine        *underwriting.Engine
	overlayEngine *overlay.Engine
	version       string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *underwriting.Engine, overlayEngine *overlay.Engine, version string) *Handler {
	return &Handler{
		repo:          repo,
		cache:         cache,
		bus:           bus,
		engine:        engine,
		overlayEngine: overlayEngine,
		version:       version,
	}
}

// Submit handles POST /api/submit requests. The body is an arbitrary
// case record; the only structural requirement is that it is a JSON
// object. Evaluation is synchronous: decision computed, then stored,
// then returned.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var raw domain.Case
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request body must be a JSON object",
		})
		return
	}

	result := h.engine.Evaluate(raw)

	var submissions int64
	if h.cache != nil {
		submissions, _ = h.cache.IncrementCounter(ctx, "submissions", submissionWindow)
	}

	if h.repo != nil {
		if err := h.repo.SaveResult(ctx, result); err != nil {
			slog.Error("failed to save result", "case_id", result.CaseID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to store result",
			})
			return
		}
	}

	if h.cache != nil {
		if err := h.cache.SetResult(ctx, result.CaseID, result, resultCacheTTL); err != nil {
			slog.Warn("failed to cache result", "case_id", result.CaseID, "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, domain.TopicDecision, payload); err != nil {
			slog.Warn("failed to publish decision", "case_id", result.CaseID, "error", err)
		}
	}

	slog.Info("case decided",
		"case_id", result.CaseID,
		"decision", result.Decision,
		"risk_score", result.RiskScore,
		"submissions_1m", submissions,
	)

	writeJSON(w, http.StatusOK, result)
}

// BatchSubmitResponse is the response for POST /api/submit/batch.
type BatchSubmitResponse struct {
	Results []*domain.ResultSummary `json:"results"`
	Count   int                     `json:"count"`
}

// SubmitBatch handles POST /api/submit/batch requests. The body is a
// JSON array of case records, or an object wrapping one under
// "test_cases"; each case is evaluated and stored in order.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	cases, err := decodeBatch(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "request body must be a JSON array or {\"test_cases\": [...]}",
		})
		return
	}
	if len(cases) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one case is required",
		})
		return
	}

	summaries := make([]*domain.ResultSummary, 0, len(cases))
	for _, raw := range cases {
		result := h.engine.Evaluate(raw)

		if h.repo != nil {
			if err := h.repo.SaveResult(ctx, result); err != nil {
				slog.Error("failed to save result", "case_id", result.CaseID, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "failed to store result for case " + result.CaseID,
				})
				return
			}
		}
		if h.cache != nil {
			_ = h.cache.SetResult(ctx, result.CaseID, result, resultCacheTTL)
			_, _ = h.cache.IncrementCounter(ctx, "submissions", submissionWindow)
		}

		summaries = append(summaries, result.Summary())
	}

	writeJSON(w, http.StatusOK, BatchSubmitResponse{
		Results: summaries,
		Count:   len(summaries),
	})
}

// decodeBatch accepts a bare array of cases or a test_cases wrapper.
func decodeBatch(raw []byte) ([]domain.Case, error) {
	var cases []domain.Case
	if err := json.Unmarshal(raw, &cases); err == nil {
		return cases, nil
	}

	var wrapped struct {
		TestCases []domain.Case `json:"test_cases"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.TestCases == nil {
		return nil, fmt.Errorf("missing test_cases")
	}
	return wrapped.TestCases, nil
}

// GetLoan handles GET /api/loan/{caseID} requests, serving the stored
// result for a case. The cache is consulted before the repository.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID := chi.URLParam(r, "caseID")

	if caseID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "case id is required",
		})
		return
	}

	if h.cache != nil {
		if cached, err := h.cache.GetResult(ctx, caseID); err == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetResult(ctx, caseID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get result", "case_id", caseID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "case not found",
		})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetResult(ctx, caseID, result, resultCacheTTL)
	}

	writeJSON(w, http.StatusOK, result)
}

// ListLoans handles GET /api/loans requests.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	results, err := h.repo.ListResults(ctx, 100)
	if err != nil {
		slog.Error("failed to list results", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list results",
		})
		return
	}

	summaries := make([]*domain.ResultSummary, 0, len(results))
	for _, res := range results {
		s := res.Summary()
		s.Memo = ""
		summaries = append(summaries, s)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": summaries,
		"count":   len(summaries),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
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
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns all overlay rules loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.overlayEngine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves an overlay rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.overlayEngine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating an overlay rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Outcome     string `json:"outcome"`
	Message     string `json:"message"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule creates a new overlay rule and saves it to the database.
// After saving, call POST /rules/reload to hot-reload into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.OverlayRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1",
		Expression:  req.Expression,
		Outcome:     req.Outcome,
		Message:     req.Message,
		Enabled:     req.Enabled,
	}

	// Validate the expression before anything is persisted
	if err := h.overlayEngine.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveOverlayRule(ctx, rule); err != nil {
			slog.Error("failed to save overlay rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("overlay rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// DeleteRule disables an overlay rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteOverlayRule(ctx, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload after delete so the rule stops firing immediately
	dbRules, err := h.repo.ListOverlayRules(ctx)
	if err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else if err := h.overlayEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload engine after delete", "error", err)
	}

	slog.Info("overlay rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Rule deleted and engine reloaded.",
	})
}

// ReloadRules reloads all overlay rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListOverlayRules(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.overlayEngine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("overlay rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
