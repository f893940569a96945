package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	"github.com/FACorreiaa/statement-ledger/pkg/httpx"
	"github.com/FACorreiaa/statement-ledger/pkg/money"
)

// CategoryLookup resolves category ids to names for exports.
type CategoryLookup interface {
	CategoryNames(ctx context.Context) (map[uuid.UUID]string, error)
}

// LedgerHandler serves transaction maintenance and split endpoints
type LedgerHandler struct {
	svc        *ledger.Service
	categories CategoryLookup
	logger     *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(svc *ledger.Service, categories CategoryLookup, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, categories: categories, logger: logger}
}

// Register mounts the handler routes on mux.
func (h *LedgerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/transactions", h.List)
	mux.HandleFunc("GET /api/transactions/export", h.Export)
	mux.HandleFunc("GET /api/transactions/summary", h.Summary)
	mux.HandleFunc("GET /api/transactions/{id}", h.Get)
	mux.HandleFunc("PATCH /api/transactions/{id}", h.Update)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.Delete)
	mux.HandleFunc("POST /api/transactions/{id}/split", h.Split)
	mux.HandleFunc("POST /api/transactions/{id}/unsplit", h.Unsplit)
}

type transactionResponse struct {
	ID              uuid.UUID       `json:"id"`
	Date            time.Time       `json:"date"`
	AccountNumber   *string         `json:"accountNumber,omitempty"`
	AccountName     *string         `json:"accountName,omitempty"`
	AccountType     *string         `json:"accountType,omitempty"`
	Description     string          `json:"description"`
	RawDescription  string          `json:"rawDescription"`
	Note            *string         `json:"note,omitempty"`
	Withdrawal      *string         `json:"withdrawal"`
	Deposit         *string         `json:"deposit"`
	Balance         string          `json:"balance"`
	Channel         *string         `json:"channel,omitempty"`
	TransactionCode *string         `json:"transactionCode,omitempty"`
	ChequeNumber    *string         `json:"chequeNumber,omitempty"`
	CategoryID      *uuid.UUID      `json:"categoryId"`
	IsSplit         bool            `json:"isSplit"`
	Splits          []splitResponse `json:"splits,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type splitResponse struct {
	ID         uuid.UUID `json:"id"`
	CategoryID uuid.UUID `json:"categoryId"`
	Amount     string    `json:"amount"`
	Note       *string   `json:"note,omitempty"`
}

func toResponse(tx *ledger.Transaction, splits []ledger.Split) transactionResponse {
	resp := transactionResponse{
		ID:              tx.ID,
		Date:            tx.Date,
		AccountNumber:   tx.AccountNumber,
		AccountName:     tx.AccountName,
		AccountType:     tx.AccountType,
		Description:     tx.Description,
		RawDescription:  tx.RawDescription,
		Note:            tx.Note,
		Withdrawal:      money.NullableFixed(tx.Withdrawal),
		Deposit:         money.NullableFixed(tx.Deposit),
		Balance:         money.Fixed(tx.Balance),
		Channel:         tx.Channel,
		TransactionCode: tx.TransactionCode,
		ChequeNumber:    tx.ChequeNumber,
		CategoryID:      tx.CategoryID,
		IsSplit:         tx.IsSplit,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       tx.UpdatedAt,
	}
	for _, s := range splits {
		resp.Splits = append(resp.Splits, splitResponse{
			ID:         s.ID,
			CategoryID: s.CategoryID,
			Amount:     money.Fixed(s.Amount),
			Note:       s.Note,
		})
	}
	return resp
}

// List handles GET /api/transactions
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list transactions", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, toResponse(&txs[i], nil))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"transactions": out,
		"count":        len(out),
	})
}

// Export handles GET /api/transactions/export
func (h *LedgerHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = 0

	names, err := h.categories.CategoryNames(r.Context())
	if err != nil {
		h.logger.Error("failed to load categories for export", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to export transactions")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger.csv"`)
	if _, err := h.svc.Export(r.Context(), w, filter, func(id uuid.UUID) string { return names[id] }); err != nil {
		h.logger.Error("failed to export transactions", "error", err)
	}
}

// Summary handles GET /api/transactions/summary?from=2025-01-01&to=2025-02-01
func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, errFrom := time.Parse(time.DateOnly, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.DateOnly, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		httpx.WriteError(w, http.StatusBadRequest, "from and to must be YYYY-MM-DD")
		return
	}

	totals, err := h.svc.Summary(r.Context(), from, to)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	type line struct {
		Category    string `json:"category"`
		Count       int    `json:"count"`
		Withdrawals string `json:"withdrawals"`
		Deposits    string `json:"deposits"`
	}
	out := make([]line, 0, len(totals))
	for _, t := range totals {
		out = append(out, line{
			Category:    t.Category,
			Count:       t.Count,
			Withdrawals: money.Fixed(t.Withdrawals),
			Deposits:    money.Fixed(t.Deposits),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// Get handles GET /api/transactions/{id}
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	result, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(result.Transaction, result.Splits))
}

// Update handles PATCH /api/transactions/{id}
func (h *LedgerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req struct {
		CategoryID *uuid.UUID `json:"categoryId"`
		Note       *string    `json:"note"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx, err := h.svc.Update(r.Context(), id, req.CategoryID, req.Note)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toResponse(tx, nil))
}

// Delete handles DELETE /api/transactions/{id}
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Split handles POST /api/transactions/{id}/split
func (h *LedgerHandler) Split(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req struct {
		Allocations []struct {
			CategoryID uuid.UUID       `json:"categoryId"`
			Amount     decimal.Decimal `json:"amount"`
			Note       *string         `json:"note"`
		} `json:"allocations"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	allocations := make([]ledger.Allocation, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		allocations = append(allocations, ledger.Allocation{CategoryID: a.CategoryID, Amount: a.Amount, Note: a.Note})
	}

	splits, err := h.svc.Split(r.Context(), id, allocations)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]splitResponse, 0, len(splits))
	for _, s := range splits {
		out = append(out, splitResponse{ID: s.ID, CategoryID: s.CategoryID, Amount: money.Fixed(s.Amount), Note: s.Note})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"splits": out})
}

// Unsplit handles POST /api/transactions/{id}/unsplit
func (h *LedgerHandler) Unsplit(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathUUID(r, "id")
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	var req struct {
		CategoryID *uuid.UUID `json:"categoryId"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.svc.Unsplit(r.Context(), id, req.CategoryID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *LedgerHandler) writeDomainError(w http.ResponseWriter, err error) {
	var imbalance *ledger.ImbalanceError
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &imbalance),
		errors.Is(err, ledger.ErrTooFewAllocations),
		errors.Is(err, ledger.ErrNonPositiveAllocation),
		errors.Is(err, ledger.ErrMissingAllocationOwner):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("ledger request failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFilter(r *http.Request) (ledger.ListFilter, error) {
	q := r.URL.Query()
	filter := ledger.ListFilter{
		Limit:         httpx.QueryInt(r, "limit", 100),
		Offset:        httpx.QueryInt(r, "offset", 0),
		Uncategorized: q.Get("uncategorized") == "true",
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", v)
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", v)
		}
		filter.To = &t
	}
	if v := q.Get("categoryId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, fmt.Errorf("invalid categoryId %q", v)
		}
		filter.CategoryID = &id
	}
	return filter, nil
}
