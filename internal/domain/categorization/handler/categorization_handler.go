package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	"github.com/FACorreiaa/statement-ledger/pkg/httpx"
)

// CategorizationHandler serves rule and category administration.
type CategorizationHandler struct {
	svc    *categorization.Service
	txs    categorization.TransactionStore
	logger *slog.Logger
}

// NewCategorizationHandler creates a new categorization handler
func NewCategorizationHandler(svc *categorization.Service, txs categorization.TransactionStore, logger *slog.Logger) *CategorizationHandler {
	return &CategorizationHandler{svc: svc, txs: txs, logger: logger}
}

// Register mounts the handler routes on mux.
func (h *CategorizationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rules", h.ListRules)
	mux.HandleFunc("POST /api/rules", h.CreateRule)
	mux.HandleFunc("POST /api/rules/test", h.TestPattern)
	mux.HandleFunc("POST /api/rules/seed", h.SeedRules)
	mux.HandleFunc("GET /api/rules/search", h.SearchRules)
	mux.HandleFunc("PUT /api/rules/{id}", h.UpdateRule)
	mux.HandleFunc("DELETE /api/rules/{id}", h.DeleteRule)
	mux.HandleFunc("POST /api/rules/{id}/toggle", h.ToggleRule)

	mux.HandleFunc("GET /api/categories", h.ListCategories)
	mux.HandleFunc("GET /api/categories/search", h.SearchCategories)
	mux.HandleFunc("POST /api/categories/sync", h.SyncCategories)
	mux.HandleFunc("DELETE /api/categories/unused", h.DeleteUnused)

	mux.HandleFunc("POST /api/reclassify", h.Reclassify)
}

// ListRules handles GET /api/rules
func (h *CategorizationHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		h.logger.Error("failed to list rules", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	if rules == nil {
		rules = []categorization.CategoryRule{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// CreateRule handles POST /api/rules
func (h *CategorizationHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	in := categorization.RuleInput{IsActive: true}
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.svc.CreateRule(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /api/rules/{id}
func (h *CategorizationHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var patch categorization.RulePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rule, err := h.svc.UpdateRule(r.Context(), id, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rule)
}

// DeleteRule handles DELETE /api/rules/{id}
func (h *CategorizationHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	if err := h.svc.DeleteRule(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleRule handles POST /api/rules/{id}/toggle
func (h *CategorizationHandler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid rule id")
		return
	}
	active, err := h.svc.ToggleRule(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"isActive": active})
}

// TestPattern handles POST /api/rules/test
func (h *CategorizationHandler) TestPattern(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pattern string `json:"pattern"`
		IsRegex bool   `json:"isRegex"`
		Text    string `json:"text"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	matched, err := categorization.TestPattern(req.Pattern, req.IsRegex, req.Text)
	if err != nil {
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"matched": matched})
}

// SeedRules handles POST /api/rules/seed?set=learned
func (h *CategorizationHandler) SeedRules(w http.ResponseWriter, r *http.Request) {
	set := r.URL.Query().Get("set")
	if set == "" {
		set = categorization.RuleSetLearned
	}

	res, err := h.svc.SeedRules(r.Context(), set)
	if err != nil {
		h.logger.Error("failed to seed rules", "set", set, "error", err)
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// SearchRules handles GET /api/rules/search?q=
func (h *CategorizationHandler) SearchRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		httpx.WriteError(w, http.StatusBadRequest, "q is required")
		return
	}

	hits, err := h.svc.SearchRules(r.Context(), q, httpx.QueryInt(r, "limit", 10))
	if err != nil {
		h.logger.Error("failed to search rules", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to search rules")
		return
	}
	if hits == nil {
		hits = []categorization.SearchHit{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

// ListCategories handles GET /api/categories
func (h *CategorizationHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.CategoryUsage(r.Context())
	if err != nil {
		h.logger.Error("failed to list categories", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if usage == nil {
		usage = []categorization.CategoryUsage{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": usage})
}

// SearchCategories handles GET /api/categories/search?q=
func (h *CategorizationHandler) SearchCategories(w http.ResponseWriter, r *http.Request) {
	matches, err := h.svc.SearchCategories(r.Context(), r.URL.Query().Get("q"), httpx.QueryInt(r, "limit", 10))
	if err != nil {
		h.logger.Error("failed to search categories", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to search categories")
		return
	}
	if matches == nil {
		matches = []categorization.CategoryMatch{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// SyncCategories handles POST /api/categories/sync. An empty body syncs the built-in palette.
func (h *CategorizationHandler) SyncCategories(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Categories []categorization.PaletteEntry `json:"categories"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	res, err := h.svc.SyncCategories(r.Context(), req.Categories)
	if err != nil {
		h.logger.Error("failed to sync categories", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to sync categories")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// DeleteUnused handles DELETE /api/categories/unused
func (h *CategorizationHandler) DeleteUnused(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteUnused(r.Context())
	if err != nil {
		h.logger.Error("failed to delete unused categories", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to delete unused categories")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// Reclassify handles POST /api/reclassify?limit=50
func (h *CategorizationHandler) Reclassify(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Engine().ClassifierEnabled() {
		httpx.WriteError(w, http.StatusServiceUnavailable, "classifier is not configured")
		return
	}

	res, err := h.svc.Reclassify(r.Context(), h.txs, httpx.QueryInt(r, "limit", categorization.DefaultReclassifyLimit))
	if err != nil {
		h.logger.Error("reclassification failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "reclassification failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *CategorizationHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, categorization.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "rule not found")
	case errors.Is(err, categorization.ErrInvalidRegex),
		errors.Is(err, categorization.ErrInvalidField),
		errors.Is(err, categorization.ErrEmptyPattern),
		errors.Is(err, categorization.ErrCategoryRequired):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("categorization request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
