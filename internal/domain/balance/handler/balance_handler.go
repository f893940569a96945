package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FACorreiaa/statement-ledger/internal/domain/balance"
	"github.com/FACorreiaa/statement-ledger/pkg/httpx"
)

// BalanceHandler serves balance history and reconciliation
type BalanceHandler struct {
	svc    *balance.Service
	logger *slog.Logger
}

// NewBalanceHandler creates a new balance handler
func NewBalanceHandler(svc *balance.Service, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{svc: svc, logger: logger}
}

// Register mounts the handler routes on mux.
func (h *BalanceHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/balance/history", h.History)
	mux.HandleFunc("GET /api/balance/check", h.Check)
}

// History handles GET /api/balance/history?account=&from=&to=
func (h *BalanceHandler) History(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.History(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to compute balance history", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to compute balance history")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// Check handles GET /api/balance/check?account=&from=&to=
func (h *BalanceHandler) Check(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Check(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to check balances", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to check balances")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"checked":    res.Checked,
		"reconciled": res.Reconciled(),
		"breaks":     res.Breaks,
	})
}

func parseQuery(r *http.Request) (balance.Query, error) {
	values := r.URL.Query()
	var q balance.Query
	if v := strings.TrimSpace(values.Get("account")); v != "" {
		q.Account = &v
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := values.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return q, fmt.Errorf("invalid %s date %q", p.name, v)
		}
		*p.dst = &t
	}
	return q, nil
}
