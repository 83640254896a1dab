package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Лимиты query параметров рынков
const (
	defaultFundingLimit = 50
	maxFundingLimit     = 100
	maxOrderbookDepth   = 100
)

// MarketHandler обрабатывает HTTP запросы к данным рынков.
//
// Endpoints:
// - GET /api/markets/list - список перпетуальных рынков
// - GET /api/markets/{market}/data - цены, funding и статистика за 24 часа
// - GET /api/markets/{market}/orderbook?depth=N - стакан
// - GET /api/markets/{market}/funding?limit=N - история funding
type MarketHandler struct {
	marketService service.MarketServiceInterface
	logger        *utils.Logger
}

// NewMarketHandler создает новый MarketHandler с внедрением зависимостей.
func NewMarketHandler(marketService service.MarketServiceInterface, logger *utils.Logger) *MarketHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &MarketHandler{
		marketService: marketService,
		logger:        logger.WithComponent("market_handler"),
	}
}

// ListMarkets возвращает все рынки.
//
// GET /api/markets/list
//
// Response 200 OK: {"markets": [...], "count": N}
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := h.marketService.ListMarkets(r.Context())
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"markets": markets,
		"count":   len(markets),
	})
}

// GetMarketData возвращает состояние рынка.
//
// GET /api/markets/{market}/data
func (h *MarketHandler) GetMarketData(w http.ResponseWriter, r *http.Request) {
	data, err := h.marketService.GetMarketData(r.Context(), mux.Vars(r)["market"])
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, data)
}

// GetOrderbook возвращает стакан рынка.
//
// GET /api/markets/{market}/orderbook?depth=N
//
// Без depth отдаются все уровни, depth больше 100 обрезается.
func (h *MarketHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth, err := utils.ParseLimit(r.URL.Query().Get("depth"), 0, maxOrderbookDepth)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid depth", err.Error())
		return
	}

	book, err := h.marketService.GetOrderbook(r.Context(), mux.Vars(r)["market"], depth)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, book)
}

// GetFundingHistory возвращает историю funding ставок.
//
// GET /api/markets/{market}/funding?limit=N
func (h *MarketHandler) GetFundingHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.ParseLimit(r.URL.Query().Get("limit"), defaultFundingLimit, maxFundingLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	market := mux.Vars(r)["market"]
	history, err := h.marketService.GetFundingHistory(r.Context(), market, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"market":  utils.NormalizeMarket(market),
		"funding": history,
		"count":   len(history),
	})
}
