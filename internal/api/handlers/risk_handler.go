package handlers

import (
	"net/http"

	"github.com/temitopeohassan/perpraid/internal/api/middleware"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

const (
	defaultAnalysisLimit = 20
	maxAnalysisLimit     = 100
)

// RiskHandler обрабатывает запросы расчета риска позиций.
//
// Endpoints:
// - POST /api/risk/liquidation-price - цена ликвидации по параметрам позиции
// - POST /api/risk/analyze - полный анализ открытой или планируемой позиции кошелька
// - POST /api/risk/calculate - анализ по полностью переданным данным, без индексера
// - GET /api/risk/history?limit=N - журнал анализов кошелька
// - GET /api/risk/stats?period=day|week|month|all - агрегаты журнала
//
// Все decimal поля ответа сериализуются строками без округления.
type RiskHandler struct {
	riskService service.RiskServiceInterface
	logger      *utils.Logger
}

// NewRiskHandler создает новый RiskHandler
func NewRiskHandler(riskService service.RiskServiceInterface, logger *utils.Logger) *RiskHandler {
	if logger == nil {
		logger = utils.L()
	}
	return &RiskHandler{
		riskService: riskService,
		logger:      logger.WithComponent("risk_handler"),
	}
}

// LiquidationPrice рассчитывает цену ликвидации.
//
// POST /api/risk/liquidation-price
//
// Request body:
//
//	{"market": "BTC-USD", "side": "LONG", "size": "0.5", "entry_price": "42000",
//	 "leverage": "5", "maintenance_margin_fraction": "0.03", "margin_mode": "cross"}
//
// maintenance_margin_fraction необязателен: без него берется из данных рынка.
func (h *RiskHandler) LiquidationPrice(w http.ResponseWriter, r *http.Request) {
	var req models.LiquidationPriceRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	resp, err := h.riskService.LiquidationPrice(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// Analyze анализирует позицию кошелька.
//
// POST /api/risk/analyze
//
// Request body: {"position_id": "BTC-USD-LONG"} или {"market": "ETH-USD", "side": "SHORT", "size": "2", "leverage": "3"}
func (h *RiskHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}

	var req models.AnalyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	metrics, err := h.riskService.Analyze(r.Context(), wallet, &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, metrics)
}

// Calculate считает метрики по данным запроса.
// Если передан кошелек, результат пишется в его журнал.
//
// POST /api/risk/calculate
func (h *RiskHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req models.CalculateRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	metrics, err := h.riskService.Calculate(r.Context(), middleware.WalletFromContext(r.Context()), &req)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, metrics)
}

// GetHistory возвращает последние анализы кошелька.
//
// GET /api/risk/history?limit=N
//
// Response 503 если журнал отключен (нет БД).
func (h *RiskHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}
	limit, err := utils.ParseLimit(r.URL.Query().Get("limit"), defaultAnalysisLimit, maxAnalysisLimit)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit", err.Error())
		return
	}

	analyses, err := h.riskService.History(r.Context(), wallet, limit)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	if analyses == nil {
		analyses = []*models.RiskAnalysis{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetStats возвращает агрегаты журнала за период.
//
// GET /api/risk/stats?period=week
func (h *RiskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	wallet, ok := requireWallet(w, r)
	if !ok {
		return
	}

	stats, err := h.riskService.Stats(r.Context(), wallet, r.URL.Query().Get("period"))
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}
