package handlers

import (
	"net/http"

	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// AuthHandler выдает токены доступа по подписи кошелька.
//
// POST /api/auth/login
//
// Request body:
//
//	{"address": "0x...", "message": "Sign in ... 0x... nonce", "signature": "0x..."}
//
// Сообщение подписывается через personal_sign и должно содержать адрес.
type AuthHandler struct {
	authService service.AuthServiceInterface
	logger      *utils.Logger
}

// NewAuthHandler создает новый AuthHandler
func NewAuthHandler(authService service.AuthServiceInterface, logger *utils.Logger) *AuthHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &AuthHandler{
		authService: authService,
		logger:      logger.WithComponent("auth_handler"),
	}
}

// Login проверяет подпись и возвращает JWT
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("wallet logged in", utils.Wallet(resp.Address))
	respondWithJSON(w, http.StatusOK, resp)
}
