package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestival/algorand-tracker/internal/circuitbreaker"
	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/ratelimit"
	"github.com/vestival/algorand-tracker/internal/service"
	"github.com/vestival/algorand-tracker/internal/types"
)

// Mock services for testing

type mockPortfolioService struct {
	refreshFunc  func(ctx context.Context, userID string) (*service.RefreshResult, error)
	snapshotFunc func(ctx context.Context, userID string) (*models.PortfolioSnapshot, error)
	historyFunc  func(ctx context.Context, userID string, mode types.HistoryMode) ([]models.HistoryPoint, error)
}

func (m *mockPortfolioService) Refresh(ctx context.Context, userID string) (*service.RefreshResult, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, userID)
	}
	return &service.RefreshResult{OK: true, SnapshotID: "snap-1"}, nil
}

func (m *mockPortfolioService) GetLatestSnapshot(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
	if m.snapshotFunc != nil {
		return m.snapshotFunc(ctx, userID)
	}
	return &models.PortfolioSnapshot{Method: types.MethodFIFO, Totals: models.Totals{ValueUSD: 42}}, nil
}

func (m *mockPortfolioService) GetHistory(ctx context.Context, userID string, mode types.HistoryMode) ([]models.HistoryPoint, error) {
	if m.historyFunc != nil {
		return m.historyFunc(ctx, userID, mode)
	}
	return nil, nil
}

type mockWalletService struct {
	linked []*service.LinkWalletInput
	err    error
}

func (m *mockWalletService) Link(ctx context.Context, userID string, input *service.LinkWalletInput) (*service.WalletView, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.linked = append(m.linked, input)
	return &service.WalletView{ID: input.Address, Address: input.Address, Label: input.Label}, nil
}

func (m *mockWalletService) List(ctx context.Context, userID string) ([]*service.WalletView, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []*service.WalletView{{ID: "W1", Address: "W1"}}, nil
}

func newTestServer(t *testing.T, portfolio *mockPortfolioService, wallets *mockWalletService, max int) *Server {
	t.Helper()
	limiter, err := ratelimit.NewLimiter(&ratelimit.Config{Window: time.Minute, Max: max}, nil)
	require.NoError(t, err)
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("algorand-indexer"))
	return NewServer(&ServerConfig{Host: "localhost", Port: "0"}, portfolio, wallets, limiter, breaker)
}

func doRequest(s *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Host = "tracker.example"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

var authed = map[string]string{"X-User-ID": "user-1", "Origin": "https://tracker.example"}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	providers := body["providers"].([]interface{})
	require.Len(t, providers, 1)
	assert.Equal(t, "algorand-indexer", providers[0].(map[string]interface{})["name"])
}

func TestRequiresUser(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetSnapshot(t *testing.T) {
	var gotUser string
	portfolio := &mockPortfolioService{snapshotFunc: func(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
		gotUser = userID
		return &models.PortfolioSnapshot{Totals: models.Totals{ValueUSD: 42}}, nil
	}}
	s := newTestServer(t, portfolio, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotUser)

	snapshot := decodeBody(t, rec)["snapshot"].(map[string]interface{})
	assert.Equal(t, 42.0, snapshot["totals"].(map[string]interface{})["valueUsd"])
}

func TestGetSnapshotNotFound(t *testing.T) {
	portfolio := &mockPortfolioService{snapshotFunc: func(ctx context.Context, userID string) (*models.PortfolioSnapshot, error) {
		return nil, &types.ServiceError{Code: apperrors.CodeSnapshotNotFound, Message: "no snapshot available"}
	}}
	s := newTestServer(t, portfolio, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, map[string]string{"X-User-ID": "user-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, apperrors.CodeSnapshotNotFound, errBody["code"])
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodPost, "/api/portfolio/refresh", nil, authed)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "snap-1", body["snapshotId"])
}

func TestRefreshWithoutWallets(t *testing.T) {
	portfolio := &mockPortfolioService{refreshFunc: func(ctx context.Context, userID string) (*service.RefreshResult, error) {
		return nil, &types.ServiceError{Code: apperrors.CodeNoVerifiedWallets, Message: "No verified wallets linked"}
	}}
	s := newTestServer(t, portfolio, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodPost, "/api/portfolio/refresh", nil, authed)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errBody := decodeBody(t, rec)["error"].(map[string]interface{})
	assert.Equal(t, "No verified wallets linked", errBody["message"])
}

func TestRefreshProviderFailureHidesCause(t *testing.T) {
	portfolio := &mockPortfolioService{refreshFunc: func(ctx context.Context, userID string) (*service.RefreshResult, error) {
		return nil, apperrors.NewProviderError("algorand-indexer", errors.New("dial tcp 10.0.0.1:443: timeout"))
	}}
	s := newTestServer(t, portfolio, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodPost, "/api/portfolio/refresh", nil, authed)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestSameOrigin(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 5)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "missing origin", headers: map[string]string{"X-User-ID": "user-1"}, want: http.StatusForbidden},
		{name: "cross origin", headers: map[string]string{"X-User-ID": "user-1", "Origin": "https://evil.example"}, want: http.StatusForbidden},
		{name: "invalid origin", headers: map[string]string{"X-User-ID": "user-1", "Origin": "::not a url"}, want: http.StatusForbidden},
		{name: "forwarded host", headers: map[string]string{"X-User-ID": "user-1", "Origin": "https://app.example", "X-Forwarded-Host": "app.example"}, want: http.StatusOK},
		{name: "same origin", headers: authed, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodPost, "/api/portfolio/refresh", nil, tt.headers)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestGetHistory(t *testing.T) {
	var gotMode types.HistoryMode
	portfolio := &mockPortfolioService{historyFunc: func(ctx context.Context, userID string, mode types.HistoryMode) ([]models.HistoryPoint, error) {
		gotMode = mode
		return []models.HistoryPoint{{Timestamp: time.Date(2026, 2, 15, 23, 59, 59, 999_000_000, time.UTC), ValueUSD: 10}}, nil
	}}
	s := newTestServer(t, portfolio, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/api/portfolio/history?mode=reconstructed", nil, map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.HistoryModeReconstructed, gotMode)
	assert.JSONEq(t, `{"history":[{"ts":"2026-02-15T23:59:59.999Z","valueUsd":10}]}`, rec.Body.String())
}

func TestGetHistoryEmpty(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 5)

	rec := doRequest(s, http.MethodGet, "/api/portfolio/history", nil, map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[]}`, rec.Body.String())
}

func TestWallets(t *testing.T) {
	wallets := &mockWalletService{}
	s := newTestServer(t, &mockPortfolioService{}, wallets, 5)

	rec := doRequest(s, http.MethodGet, "/api/wallets", nil, map[string]string{"X-User-ID": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["wallets"], 1)

	body, _ := json.Marshal(map[string]string{"address": "ADDR", "label": "Main"})
	rec = doRequest(s, http.MethodPost, "/api/wallets", body, authed)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, wallets.linked, 1)
	assert.Equal(t, "Main", *wallets.linked[0].Label)

	rec = doRequest(s, http.MethodPost, "/api/wallets", []byte(`{"address":`), authed)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinkWalletInvalidAddress(t *testing.T) {
	wallets := &mockWalletService{err: &types.ServiceError{Code: apperrors.CodeInvalidAddress, Message: "Invalid Algorand address"}}
	s := newTestServer(t, &mockPortfolioService{}, wallets, 5)

	body, _ := json.Marshal(map[string]string{"address": "ADDR"})
	rec := doRequest(s, http.MethodPost, "/api/wallets", body, authed)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &mockPortfolioService{}, &mockWalletService{}, 2)
	headers := map[string]string{"X-User-ID": "user-1", "X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < 2; i++ {
		rec := doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// limits are per route, user and client IP
	rec = doRequest(s, http.MethodGet, "/api/wallets", nil, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, map[string]string{"X-User-ID": "user-2", "X-Forwarded-For": "203.0.113.7"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(s, http.MethodGet, "/api/portfolio/snapshot", nil, map[string]string{"X-User-ID": "user-1", "X-Forwarded-For": "198.51.100.1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
