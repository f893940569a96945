package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/statement-ledger/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{MaxUploadBytes: 1 << 20},
		Classifier: config.ClassifierConfig{Concurrency: 1},
		Import:     config.ImportConfig{Timezone: "Asia/Bangkok", MaxErrors: 10},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := InitDependencies(context.Background(), testConfig(), logger, Options{InMemory: true, NoArchive: true})
	require.NoError(t, err)
	t.Cleanup(deps.Cleanup)

	assert.Nil(t, deps.Scheduler, "no scheduler without a classifier")

	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, url, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_Healthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRouter_ImportThenList(t *testing.T) {
	srv := newTestServer(t)
	data := []byte("Date,Time,Description,Withdrawal,Deposit,Outstanding Balance\n" +
		"01/03/2024,09:15,ATM,500.00,,9500.00\n" +
		"02/03/2024,10:00,TRANSFER,,3000.00,12500.00\n")

	for _, want := range []struct{ inserted, updated int }{{2, 0}, {0, 2}} {
		resp := upload(t, srv.URL+"/api/import", "march.csv", data)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary struct {
			Inserted int `json:"inserted"`
			Updated  int `json:"updated"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
		assert.Equal(t, want.inserted, summary.Inserted)
		assert.Equal(t, want.updated, summary.Updated)
	}

	resp, err := http.Get(srv.URL + "/api/transactions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Count)

	check, err := http.Get(srv.URL + "/api/balance/check")
	require.NoError(t, err)
	defer check.Body.Close()
	var res struct {
		Reconciled bool `json:"reconciled"`
	}
	require.NoError(t, json.NewDecoder(check.Body).Decode(&res))
	assert.True(t, res.Reconciled)
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/accounts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
