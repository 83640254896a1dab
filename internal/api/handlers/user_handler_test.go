package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temitopeohassan/perpraid/internal/api/middleware"
	"github.com/temitopeohassan/perpraid/internal/service"
)

func walletRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(middleware.WithWallet(req.Context(), testWallet))
}

// ============ UserHandler Tests ============

func TestUserHandler_Endpoints(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		call    func(h *UserHandler) http.HandlerFunc
		wantKey string
	}{
		{"balance", "/api/user/balance", func(h *UserHandler) http.HandlerFunc { return h.GetBalance }, "total_balance"},
		{"positions", "/api/user/positions", func(h *UserHandler) http.HandlerFunc { return h.GetPositions }, "positions"},
		{"history", "/api/user/history", func(h *UserHandler) http.HandlerFunc { return h.GetTradeHistory }, "trades"},
		{"risk", "/api/user/risk", func(h *UserHandler) http.HandlerFunc { return h.GetAccountRisk }, "liquidation_risk"},
		{"transactions", "/api/user/transactions", func(h *UserHandler) http.HandlerFunc { return h.GetTransactions }, "transactions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAccountService{}
			handler := NewUserHandler(svc, testLogger())
			w := httptest.NewRecorder()

			tt.call(handler)(w, walletRequest(http.MethodGet, tt.target))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
			}
			if svc.lastWallet != testWallet {
				t.Errorf("expected wallet %s, got %s", testWallet, svc.lastWallet)
			}

			var response map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if _, ok := response[tt.wantKey]; !ok {
				t.Errorf("expected key %q in %v", tt.wantKey, response)
			}
		})
	}
}

func TestUserHandler_WalletRequired(t *testing.T) {
	handler := NewUserHandler(&MockAccountService{}, testLogger())
	w := httptest.NewRecorder()

	handler.GetBalance(w, httptest.NewRequest(http.MethodGet, "/api/user/balance", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var response ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Error != "Wallet address required" {
		t.Errorf("unexpected error %q", response.Error)
	}
}

func TestUserHandler_Limit(t *testing.T) {
	svc := &MockAccountService{}
	handler := NewUserHandler(svc, testLogger())

	w := httptest.NewRecorder()
	handler.GetTradeHistory(w, walletRequest(http.MethodGet, "/api/user/history?limit=500"))
	if w.Code != http.StatusOK || svc.lastLimit != maxHistoryLimit {
		t.Errorf("expected capped limit %d, got %d (status %d)", maxHistoryLimit, svc.lastLimit, w.Code)
	}

	w = httptest.NewRecorder()
	handler.GetTransactions(w, walletRequest(http.MethodGet, "/api/user/transactions?limit=abc"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestUserHandler_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"account not found", service.ErrAccountNotFound, http.StatusNotFound},
		{"upstream", service.ErrUpstream, http.StatusBadGateway},
		{"unexpected", ErrMockUnexpected, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewUserHandler(&MockAccountService{err: tt.err}, testLogger())
			w := httptest.NewRecorder()

			handler.GetAccountRisk(w, walletRequest(http.MethodGet, "/api/user/risk"))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}
