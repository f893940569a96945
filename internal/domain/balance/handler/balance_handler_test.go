package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/internal/domain/balance"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
)

func newMux(t *testing.T) (*http.ServeMux, *ledger.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := ledger.NewMemoryRepository()
	mux := http.NewServeMux()
	NewBalanceHandler(balance.NewService(repo, time.UTC, logger), logger).Register(mux)
	return mux, repo
}

func add(t *testing.T, repo *ledger.MemoryRepository, day int, withdrawal, bal string) {
	t.Helper()
	w := decimal.RequireFromString(withdrawal)
	_, err := repo.Upsert(context.Background(), &ledger.Transaction{
		Date:       time.Date(2024, 3, day, 9, 0, 0, 0, time.UTC),
		Withdrawal: &w,
		Balance:    decimal.RequireFromString(bal),
	})
	require.NoError(t, err)
}

func TestBalanceHandler_Check(t *testing.T) {
	mux, repo := newMux(t)
	add(t, repo, 1, "100", "900")
	add(t, repo, 2, "100", "700")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balance/check?from=2024-03-01&to=2024-04-01", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Checked    int             `json:"checked"`
		Reconciled bool            `json:"reconciled"`
		Breaks     []balance.Break `json:"breaks"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Checked)
	assert.False(t, body.Reconciled)
	require.Len(t, body.Breaks, 1)
	assert.Equal(t, "800", body.Breaks[0].Expected.String())
}

func TestBalanceHandler_History(t *testing.T) {
	mux, repo := newMux(t)
	add(t, repo, 1, "100", "900")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balance/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var res balance.HistoryResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	require.Len(t, res.History, 1)
	assert.Equal(t, "900", res.History[0].Closing.String())
}

func TestBalanceHandler_BadDate(t *testing.T) {
	mux, _ := newMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/balance/history?from=01/03/2024", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
