package handlers

import (
	"net/http"

	"github.com/temitopeohassan/perpraid/internal/api/middleware"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// UserHandler обрабатывает запросы к субаккаунту кошелька.
// Адрес кошелька выставляет middleware.WalletAddress.
//
// Endpoints:
// - GET /api/user/balance
// - GET /api/user/positions
// - GET /api/user/history?limit=N
// - GET /api/user/risk
// - GET /api/user/transactions?limit=N
type UserHandler struct {
	accountService service.AccountServiceInterface
	logger         *utils.Logger
}

// NewUserHandler создает новый UserHandler
func NewUserHandler(accountService service.AccountServiceInterface, logger *utils.Logger) *UserHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &UserHandler{
		accountService: accountService,
		logger:         logger.WithComponent("user_handler"),
	}
}

// GetBalance возвращает баланс субаккаунта
// GET /api/user/balance
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(r.Context(), wallet)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

// GetPositions возвращает открытые позиции с расчетом риска
// GET /api/user/positions
func (h *UserHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}

	positions, err := h.accountService.GetPositions(r.Context(), wallet)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

// GetTradeHistory возвращает последние сделки
// GET /api/user/history?limit=N
func (h *UserHandler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}
	limit, err := utils.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	trades, err := h.accountService.GetTradeHistory(r.Context(), wallet, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetAccountRisk возвращает сводку риска всего субаккаунта
// GET /api/user/risk
func (h *UserHandler) GetAccountRisk(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}

	result, err := h.accountService.GetAccountRisk(r.Context(), wallet)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetTransactions возвращает депозиты, выводы и переводы
// GET /api/user/transactions?limit=N
func (h *UserHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}
	limit, err := utils.ParseLimit(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	txs, err := h.accountService.GetTransactions(r.Context(), wallet, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// requireWallet достает кошелек из контекста, при отсутствии отвечает 400
func requireWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	wallet := middleware.WalletFromContext(r.Context())
	if wallet == "" {
		respondWithError(w, http.StatusBadRequest, "Wallet address required", "")
		return "", false
	}
	return wallet, true
}
