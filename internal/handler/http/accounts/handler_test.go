package accounts_http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
	"ledger/internal/repository/accounts_repo/memory"
)

type failingService struct {
	err error
}

func (s failingService) CreateAccount(context.Context, domain.Account) error {
	return s.err
}

func (s failingService) ReadAccount(context.Context, string) (*domain.Account, error) {
	return nil, s.err
}

func (s failingService) AdjustBalance(context.Context, string, domain.Amount) (domain.Amount, error) {
	return domain.Amount{}, s.err
}

func (s failingService) ApplyAdjustment(context.Context, string, string, domain.Amount) (domain.Amount, error) {
	return domain.Amount{}, s.err
}

func newTestRouter(t *testing.T, svc ledger.LedgerService) (http.Handler, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	if svc == nil {
		svc = ledger.NewLedgerService(memory.NewAccountRepository(), logger)
	}
	return NewRouter(RouterConfig{RequestTimeout: 5 * time.Second}, svc, logger), logs
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string, http.Header) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code, rec.Body.String(), rec.Header()
}

func TestRouter_Scenario(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	status, body, _ := do(t, router, http.MethodPost, "/accounts", `{"accountId":"A1","balance":0.00}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Empty(t, body)

	steps := []struct {
		amount string
		want   string
	}{
		{amount: `{"amount":"10.10"}`, want: `{"balance": 10.10}`},
		{amount: `{"amount":-5.00}`, want: `{"balance": 5.10}`},
		{amount: `{"amount":-5.10}`, want: `{"balance": 0.00}`},
	}
	for _, step := range steps {
		status, body, header := do(t, router, http.MethodPost, "/accounts/A1/balance", step.amount)
		require.Equal(t, http.StatusOK, status, body)
		assert.Equal(t, "application/json", header.Get("Content-Type"))
		assert.JSONEq(t, step.want, body)
	}

	status, body, header := do(t, router, http.MethodPost, "/accounts/A1/balance", `{"amount":-0.01}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.JSONEq(t, `{"error":"insufficient funds"}`, body)

	status, body, _ = do(t, router, http.MethodGet, "/accounts/A1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"accountId":"A1","balance":0.00}`, body)
}

func TestRouter_BalanceRendersNormalized(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	status, _, _ := do(t, router, http.MethodPost, "/accounts", `{"accountId":"A1","balance":"1.500"}`)
	require.Equal(t, http.StatusCreated, status)

	_, body, _ := do(t, router, http.MethodGet, "/accounts/A1", "")
	assert.Equal(t, `{"accountId":"A1","balance":1.5}`, strings.TrimSpace(body))
}

func TestRouter_ClientErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "unknown account", method: http.MethodGet, path: "/accounts/nobody", wantStatus: http.StatusNotFound, wantError: "not found"},
		{name: "adjust unknown account", method: http.MethodPost, path: "/accounts/nobody/balance", body: `{"amount":1}`, wantStatus: http.StatusNotFound, wantError: "not found"},
		{name: "missing payload", method: http.MethodPost, path: "/accounts", wantStatus: http.StatusBadRequest, wantError: "missing payload"},
		{name: "malformed json", method: http.MethodPost, path: "/accounts", body: `{"accountId":`, wantStatus: http.StatusBadRequest},
		{name: "malformed amount", method: http.MethodPost, path: "/accounts/A1/balance", body: `{"amount":"ten"}`, wantStatus: http.StatusBadRequest, wantError: `invalid payload: invalid amount "ten"`},
		{name: "amount missing", method: http.MethodPost, path: "/accounts/A1/balance", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "invalid payload: amount is required"},
		{name: "account id missing", method: http.MethodPost, path: "/accounts", body: `{"balance":1}`, wantStatus: http.StatusBadRequest, wantError: "invalid payload: accountId is required"},
		{name: "blank account id", method: http.MethodPost, path: "/accounts", body: `{"accountId":"  ","balance":1}`, wantStatus: http.StatusBadRequest, wantError: "missing account id"},
		{name: "negative initial balance", method: http.MethodPost, path: "/accounts", body: `{"accountId":"N1","balance":-1}`, wantStatus: http.StatusBadRequest, wantError: "initial balance cannot be negative"},
		{name: "exponent amount", method: http.MethodPost, path: "/accounts/A1/balance", body: `{"amount":1e5000000}`, wantStatus: http.StatusBadRequest, wantError: `invalid payload: invalid amount "1e5000000"`},
		{name: "amount too wide", method: http.MethodPost, path: "/accounts/A1/balance", body: `{"amount":"` + strings.Repeat("9", 39) + `"}`, wantStatus: http.StatusBadRequest, wantError: "invalid payload: amount exceeds 38 digits"},
		{name: "account id too long", method: http.MethodPost, path: "/accounts", body: `{"accountId":"` + strings.Repeat("a", 256) + `","balance":1}`, wantStatus: http.StatusBadRequest, wantError: "account id exceeds 255 characters"},
		{name: "read id too long", method: http.MethodGet, path: "/accounts/" + strings.Repeat("a", 256), wantStatus: http.StatusBadRequest, wantError: "account id exceeds 255 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, logs := newTestRouter(t, nil)

			status, body, header := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, "application/json", header.Get("Content-Type"))

			var got ErrorResponse
			require.NoError(t, json.Unmarshal([]byte(body), &got))
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got.Error)
			} else {
				assert.True(t, strings.HasPrefix(got.Error, "invalid payload: "), got.Error)
			}

			clientErrors := logs.FilterMessage("client error").All()
			require.Len(t, clientErrors, 1)
			assert.Equal(t, zapcore.InfoLevel, clientErrors[0].Level)
			assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
		})
	}
}

func TestRouter_DuplicateCreate(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	status, _, _ := do(t, router, http.MethodPost, "/accounts", `{"accountId":"A1","balance":5}`)
	require.Equal(t, http.StatusCreated, status)

	status, body, _ := do(t, router, http.MethodPost, "/accounts", `{"accountId":"A1","balance":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.JSONEq(t, `{"error":"account already exists"}`, body)
}

func TestRouter_InternalErrorIsOpaque(t *testing.T) {
	svc := failingService{err: domain.Internal(errors.New("pq: password authentication failed"))}
	router, logs := newTestRouter(t, svc)

	status, body, _ := do(t, router, http.MethodGet, "/accounts/A1", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"internal server error"}`, body)
	assert.NotContains(t, body, "password")

	internal := logs.FilterMessage("internal error").All()
	require.Len(t, internal, 1)
	assert.Equal(t, zapcore.ErrorLevel, internal[0].Level)
	assert.Equal(t, "pq: password authentication failed", internal[0].ContextMap()["error"])
}

func TestRouter_RequestLogging(t *testing.T) {
	router, logs := newTestRouter(t, nil)

	do(t, router, http.MethodGet, "/health", "")

	start := logs.FilterMessage("request start").All()
	end := logs.FilterMessage("request end").All()
	require.Len(t, start, 1)
	require.Len(t, end, 1)

	reqID, _ := start[0].ContextMap()["request_id"].(string)
	assert.NotEmpty(t, reqID)
	assert.Equal(t, reqID, end[0].ContextMap()["request_id"])
	assert.Equal(t, int64(http.StatusOK), end[0].ContextMap()["status"])
}

func TestRouter_CORS(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	svc := ledger.NewLedgerService(memory.NewAccountRepository(), logger)
	h := NewRouter(RouterConfig{AllowedOrigins: []string{"http://localhost:5173"}}, svc, logger)

	req := httptest.NewRequest(http.MethodOptions, "/accounts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
