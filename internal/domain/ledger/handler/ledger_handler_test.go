package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

type staticNames map[uuid.UUID]string

func (s staticNames) CategoryNames(context.Context) (map[uuid.UUID]string, error) {
	return s, nil
}

func newTestMux(t *testing.T) (*http.ServeMux, *ledger.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := ledger.NewMemoryRepository()
	h := NewLedgerHandler(ledger.NewService(repo, "ไม่ระบุ", logger), staticNames{}, logger)

	mux := http.NewServeMux()
	h.Register(mux)
	return mux, repo
}

func seedWithdrawal(t *testing.T, repo *ledger.MemoryRepository, amount string) *ledger.Transaction {
	t.Helper()
	w := decimal.RequireFromString(amount)
	tx := &ledger.Transaction{
		Date:       time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		Withdrawal: &w,
		Balance:    decimal.NewFromInt(10000),
	}
	_, err := repo.Upsert(context.Background(), tx)
	require.NoError(t, err)
	return tx
}

func TestLedgerHandler_Split(t *testing.T) {
	mux, repo := newTestMux(t)
	tx := seedWithdrawal(t, repo, "1500")

	body := `{"allocations":[{"categoryId":"` + uuid.NewString() + `","amount":"1000"},{"categoryId":"` + uuid.NewString() + `","amount":"500"}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transactions/"+tx.ID.String()+"/split", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Splits []splitResponse `json:"splits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Splits, 2)
	assert.Equal(t, "1000.00", resp.Splits[0].Amount)
}

func TestLedgerHandler_SplitImbalance(t *testing.T) {
	mux, repo := newTestMux(t)
	tx := seedWithdrawal(t, repo, "1000")

	body := `{"allocations":[{"categoryId":"` + uuid.NewString() + `","amount":"600"},{"categoryId":"` + uuid.NewString() + `","amount":"300"}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transactions/"+tx.ID.String()+"/split", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "short by 100.00")
}

func TestLedgerHandler_GetNotFound(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerHandler_UnsplitWithoutBody(t *testing.T) {
	mux, repo := newTestMux(t)
	tx := seedWithdrawal(t, repo, "100")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transactions/"+tx.ID.String()+"/unsplit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLedgerHandler_ListAndExport(t *testing.T) {
	mux, repo := newTestMux(t)
	seedWithdrawal(t, repo, "100")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "100.00")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions?from=bad", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
