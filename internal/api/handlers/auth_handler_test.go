package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/temitopeohassan/perpraid/internal/service"
)

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name       string
		svc        *MockAuthService
		body       string
		wantStatus int
	}{
		{
			name:       "valid signature",
			svc:        &MockAuthService{},
			body:       `{"address":"` + testWallet + `","message":"login ` + testWallet + `","signature":"valid"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad signature",
			svc:        &MockAuthService{},
			body:       `{"address":"` + testWallet + `","message":"login","signature":"0xdead"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "auth disabled",
			svc:        &MockAuthService{err: service.ErrAuthNotConfigured},
			body:       `{"address":"` + testWallet + `"}`,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "malformed body",
			svc:        &MockAuthService{},
			body:       `not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewAuthHandler(tt.svc, testLogger())
			w := httptest.NewRecorder()

			handler.Login(w, jsonRequest(http.MethodPost, "/api/auth/login", tt.body))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthHandler_Login_ReturnsToken(t *testing.T) {
	handler := NewAuthHandler(&MockAuthService{}, testLogger())
	w := httptest.NewRecorder()

	body := `{"address":"` + testWallet + `","message":"login","signature":"valid"}`
	handler.Login(w, jsonRequest(http.MethodPost, "/api/auth/login", body))

	var response struct {
		Token     string `json:"token"`
		Address   string `json:"address"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Token != "token-"+testWallet || response.Address != testWallet {
		t.Errorf("unexpected response %+v", response)
	}
	if response.ExpiresAt != "2024-01-02T00:00:00Z" {
		t.Errorf("unexpected expiry %s", response.ExpiresAt)
	}
}
