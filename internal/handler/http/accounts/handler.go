package accounts_http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ledger/internal/app/ledger"
	"ledger/internal/domain"
)

const maxBodyBytes = 1 << 20

type AccountHandler struct {
	service ledger.LedgerService
	logger  *zap.Logger
}

func NewAccountHandler(s ledger.LedgerService, l *zap.Logger) *AccountHandler {
	return &AccountHandler{service: s, logger: l}
}

type CreateAccountRequest struct {
	AccountID string         `json:"accountId" validate:"required"`
	Balance   *domain.Amount `json:"balance" validate:"required"`
}

type AdjustBalanceRequest struct {
	Amount *domain.Amount `json:"amount" validate:"required"`
}

type AccountResponse struct {
	AccountID string        `json:"accountId"`
	Balance   domain.Amount `json:"balance"`
}

type BalanceResponse struct {
	Balance domain.Amount `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *AccountHandler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodePayload(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	account := domain.Account{ID: req.AccountID, Balance: *req.Balance}
	if err := h.service.CreateAccount(r.Context(), account); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *AccountHandler) ReadAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	account, err := h.service.ReadAccount(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, AccountResponse{AccountID: account.ID, Balance: account.Balance})
}

func (h *AccountHandler) AdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req AdjustBalanceRequest
	if err := decodePayload(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	balance, err := h.service.AdjustBalance(r.Context(), accountID, *req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, BalanceResponse{Balance: balance})
}

func accountIDParam(r *http.Request) (string, error) {
	accountID := strings.TrimSpace(chi.URLParam(r, "accountId"))
	if accountID == "" {
		return "", domain.Validation("missing account id")
	}
	return accountID, nil
}

// decodePayload reads a JSON body into dst and validates it. Every failure is
// a validation error.
func decodePayload(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.Validation(fmt.Sprintf("invalid payload: %v", err))
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return domain.Validation("missing payload")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		if be, ok := domain.AsBusiness(err); ok {
			return domain.Validation("invalid payload: " + be.Message)
		}
		return domain.Validation("invalid payload: " + err.Error())
	}
	return validatePayload(dst)
}

func (h *AccountHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

// writeError renders business errors with their message and status. Anything
// else is logged with its cause and answered with a generic 500.
func (h *AccountHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := requestID(r)

	var be *domain.BusinessError
	if errors.As(err, &be) {
		status := statusFor(be.Class)
		h.logger.Info("client error",
			zap.String("request_id", reqID),
			zap.Int("status", status),
			zap.String("class", be.Class.String()),
			zap.String("message", be.Message))
		h.writeJSON(w, status, ErrorResponse{Error: be.Message})
		return
	}

	h.logger.Error("internal error",
		zap.String("request_id", reqID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func statusFor(class domain.ErrorClass) int {
	switch class {
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassValidation:
		return http.StatusBadRequest
	case domain.ClassRuleViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
