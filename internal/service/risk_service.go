package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// Операции калькулятора для метрик
const (
	opLiquidationPrice = "liquidation_price"
	opAnalyze          = "analyze"
	opCalculate        = "calculate"
)

// persistTimeout - ограничение на запись в журнал, запись не должна задерживать ответ
const persistTimeout = 2 * time.Second

// RiskService - расчет риска позиций поверх калькулятора
//
// Функции:
// - LiquidationPrice: цена ликвидации по параметрам запроса
// - Analyze: метрики позиции кошелька (или pre-trade) по данным индексера
// - Calculate: метрики по полностью переданному снимку, без обращений к индексеру
// - History / Stats: журнал анализов, если подключена база
type RiskService struct {
	calc     *risk.Calculator
	markets  MarketDataProvider
	accounts AccountDataProvider
	repo     AnalysisRepositoryInterface // nil - журнал отключен
	logger   *utils.Logger
	now      func() time.Time
}

// NewRiskService создает новый экземпляр RiskService.
// repo может быть nil: тогда History и Stats возвращают ErrHistoryDisabled.
func NewRiskService(calc *risk.Calculator, markets MarketDataProvider, accounts AccountDataProvider, repo AnalysisRepositoryInterface, logger *utils.Logger) *RiskService {
	if logger == nil {
		logger = utils.L()
	}
	return &RiskService{
		calc:     calc,
		markets:  markets,
		accounts: accounts,
		repo:     repo,
		logger:   logger.WithComponent("risk_service"),
		now:      time.Now,
	}
}

// LiquidationPrice рассчитывает цену ликвидации.
// MMF берется из запроса, иначе из политики и данных рынка.
func (s *RiskService) LiquidationPrice(ctx context.Context, req *models.LiquidationPriceRequest) (*models.LiquidationPriceResponse, error) {
	if req == nil {
		return nil, invalidRequest("body", errors.New("request body is required"))
	}

	var verrs utils.ValidationErrors
	market := parseMarket(&verrs, req.Market)
	side := parseSide(&verrs, req.Side)
	size := requirePositive(&verrs, "size", req.Size)
	entry := requirePositive(&verrs, "entry_price", req.EntryPrice)
	leverage := s.parseLeverage(&verrs, req.Leverage, true)
	mmf := parseFraction(&verrs, "maintenance_margin_fraction", req.MaintenanceMarginFraction)
	marginMode := parseMarginMode(&verrs, req.MarginMode)
	if verrs.HasErrors() {
		metrics.RecordRiskCalculation(opLiquidationPrice, "invalid")
		return nil, invalidFields(verrs)
	}

	if !req.MaintenanceMarginFraction.Valid {
		snapshot, err := s.markets.Snapshot(ctx, market)
		if err != nil {
			metrics.RecordRiskCalculation(opLiquidationPrice, "upstream_error")
			return nil, err
		}
		mmf = snapshot.MaintenanceMarginFraction
	}

	liq, err := s.calc.LiquidationPrice(entry, size, leverage, side, mmf)
	if err != nil {
		metrics.RecordRiskCalculation(opLiquidationPrice, "invalid")
		return nil, calcError(err)
	}
	liq = models.ClampPrice(liq)

	distance, err := s.calc.LiquidationDistance(entry, liq)
	if err != nil {
		metrics.RecordRiskCalculation(opLiquidationPrice, "invalid")
		return nil, calcError(err)
	}

	metrics.RecordRiskCalculation(opLiquidationPrice, "ok")

	return &models.LiquidationPriceResponse{
		Market:                    market,
		Side:                      string(side),
		LiquidationPrice:          liq,
		EntryPrice:                entry,
		Leverage:                  leverage,
		MarginMode:                marginMode,
		MaintenanceMarginFraction: mmf,
		DistanceToLiquidation:     distance,
	}, nil
}

// Analyze рассчитывает метрики позиции кошелька
//
// Источник позиции:
// - position_id ("BTC-USD-LONG") ищется среди открытых позиций, иначе ErrPositionNotFound
// - явно переданные side/size/leverage перекрывают значения позиции,
//   market другого рынка отклоняется: цена входа относится к рынку позиции
// - без позиции это pre-trade анализ: вход по текущей цене
//
// Плечо: из запроса (проверяется политикой), для существующей позиции -
// notional / equity, но не ниже минимального плеча политики, иначе минимальное.
// Направление по умолчанию LONG.
func (s *RiskService) Analyze(ctx context.Context, wallet string, req *models.AnalyzeRequest) (*models.RiskMetrics, error) {
	if req == nil {
		return nil, invalidRequest("body", errors.New("request body is required"))
	}
	if err := utils.ValidateWalletAddress(wallet); err != nil {
		return nil, invalidRequest("wallet_address", err)
	}

	var (
		pos      risk.PositionSnapshot
		existing bool
	)

	if id := strings.TrimSpace(req.PositionID); id != "" {
		p, err := s.findPosition(ctx, wallet, id)
		if err != nil {
			if !errors.Is(err, ErrPositionNotFound) {
				metrics.RecordRiskCalculation(opAnalyze, "upstream_error")
			}
			return nil, err
		}
		side, err := risk.ParseSide(p.Side)
		if err != nil {
			return nil, calcError(err)
		}
		pos = risk.PositionSnapshot{
			Market:     p.Market,
			Side:       side,
			Size:       p.Size.Abs(),
			EntryPrice: p.EntryPrice,
		}
		existing = true
	}

	var verrs utils.ValidationErrors
	switch {
	case !existing:
		pos.Market = parseMarket(&verrs, req.Market)
	case req.Market != "":
		if market := parseMarket(&verrs, req.Market); market != "" && !strings.EqualFold(market, pos.Market) {
			verrs.Add("market", "does not match position market "+pos.Market)
		}
	}
	if req.Side != "" {
		pos.Side = parseSide(&verrs, req.Side)
	} else if pos.Side == "" {
		pos.Side = risk.SideLong
	}
	if req.Size.Valid || !existing {
		pos.Size = requirePositive(&verrs, "size", req.Size)
	}
	leverage := s.parseLeverage(&verrs, req.Leverage, false)
	marginMode := parseMarginMode(&verrs, req.MarginMode)
	if verrs.HasErrors() {
		metrics.RecordRiskCalculation(opAnalyze, "invalid")
		return nil, invalidFields(verrs)
	}

	market, account, err := s.snapshots(ctx, pos.Market, wallet)
	if err != nil {
		metrics.RecordRiskCalculation(opAnalyze, "upstream_error")
		return nil, err
	}

	switch {
	case leverage.IsPositive():
		pos.Leverage = leverage
	case existing:
		pos.Leverage = effectiveLeverage(pos.Size.Mul(market.Price()), account.Equity)
	}
	if minLeverage := s.calc.Policy().MinLeverage; pos.Leverage.LessThan(minLeverage) {
		pos.Leverage = minLeverage
	}

	result, err := s.calc.Analyze(pos, market, account)
	if err != nil {
		metrics.RecordRiskCalculation(opAnalyze, "invalid")
		return nil, calcError(err)
	}

	metrics.RecordRiskCalculation(opAnalyze, "ok")
	metrics.RecordRiskScore(result.Market, result.RiskScore)

	entry := pos.EntryPrice
	if entry.IsZero() {
		entry = market.Price()
	}
	s.record(ctx, wallet, models.AnalysisSourceAnalyze, entry, result)

	return models.NewRiskMetrics(result, marginMode), nil
}

// Calculate рассчитывает метрики по переданному снимку.
// Индексер не вызывается, wallet нужен только для журнала и может быть пустым.
func (s *RiskService) Calculate(ctx context.Context, wallet string, req *models.CalculateRequest) (*models.RiskMetrics, error) {
	if req == nil {
		return nil, invalidRequest("body", errors.New("request body is required"))
	}

	var verrs utils.ValidationErrors
	market := parseMarket(&verrs, req.Market)
	side := parseSide(&verrs, req.Side)
	size := requirePositive(&verrs, "size", req.Size)
	entry := requirePositive(&verrs, "entry_price", req.EntryPrice)
	leverage := s.parseLeverage(&verrs, req.Leverage, true)
	mmf := parseFraction(&verrs, "maintenance_margin_fraction", req.MaintenanceMarginFraction)
	mark := requirePositive(&verrs, "mark_price", req.MarkPrice)
	marginMode := parseMarginMode(&verrs, req.MarginMode)

	var equity decimal.Decimal
	switch {
	case !req.AccountEquity.Valid:
		verrs.Add("account_equity", "is required")
	case req.AccountEquity.Decimal.IsNegative():
		verrs.Add("account_equity", "must not be negative")
	default:
		equity = req.AccountEquity.Decimal
	}

	if wallet != "" {
		verrs.AddError("wallet_address", utils.ValidateWalletAddress(wallet))
	}
	if verrs.HasErrors() {
		metrics.RecordRiskCalculation(opCalculate, "invalid")
		return nil, invalidFields(verrs)
	}

	pos := risk.PositionSnapshot{
		Market:                    market,
		Side:                      side,
		Size:                      size,
		EntryPrice:                entry,
		Leverage:                  leverage,
		MaintenanceMarginFraction: decimal.NullDecimal{Decimal: mmf, Valid: req.MaintenanceMarginFraction.Valid},
	}
	snapshot := risk.MarketSnapshot{
		Market:          market,
		MarkPrice:       mark,
		NextFundingRate: req.FundingRate.Decimal, // отсутствует - 0
	}

	result, err := s.calc.Analyze(pos, snapshot, risk.AccountSnapshot{Equity: equity})
	if err != nil {
		metrics.RecordRiskCalculation(opCalculate, "invalid")
		return nil, calcError(err)
	}

	metrics.RecordRiskCalculation(opCalculate, "ok")
	metrics.RecordRiskScore(result.Market, result.RiskScore)

	if wallet != "" {
		s.record(ctx, wallet, models.AnalysisSourceCalculate, entry, result)
	}

	return models.NewRiskMetrics(result, marginMode), nil
}

// History возвращает последние анализы кошелька
func (s *RiskService) History(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if err := utils.ValidateWalletAddress(wallet); err != nil {
		return nil, invalidRequest("wallet_address", err)
	}

	analyses, err := s.repo.ListByWallet(ctx, wallet, limit)
	if err != nil {
		return nil, err
	}
	return analyses, nil
}

// Stats возвращает агрегаты журнала кошелька за период (day, week, month, all)
func (s *RiskService) Stats(ctx context.Context, wallet, period string) (*models.AnalysisStats, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}
	if err := utils.ValidateWalletAddress(wallet); err != nil {
		return nil, invalidRequest("wallet_address", err)
	}
	p, err := utils.ParsePeriod(period)
	if err != nil {
		return nil, invalidRequest("period", err)
	}

	stats, err := s.repo.Stats(ctx, wallet, utils.PeriodRange(p, s.now()).Start)
	if err != nil {
		return nil, err
	}
	stats.Period = string(p)
	return stats, nil
}

// findPosition ищет открытую позицию по идентификатору market-side без учета регистра
func (s *RiskService) findPosition(ctx context.Context, wallet, id string) (*indexer.PerpetualPosition, error) {
	positions, err := s.accounts.OpenPositions(ctx, wallet)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if strings.EqualFold(models.PositionID(positions[i].Market, positions[i].Side), id) {
			return &positions[i], nil
		}
	}
	return nil, ErrPositionNotFound
}

// snapshots запрашивает рынок и субаккаунт параллельно
func (s *RiskService) snapshots(ctx context.Context, market, wallet string) (risk.MarketSnapshot, risk.AccountSnapshot, error) {
	var (
		wg         sync.WaitGroup
		m          risk.MarketSnapshot
		a          risk.AccountSnapshot
		marketErr  error
		accountErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		m, marketErr = s.markets.Snapshot(ctx, market)
	}()
	go func() {
		defer wg.Done()
		a, accountErr = s.accounts.AccountSnapshot(ctx, wallet)
	}()
	wg.Wait()

	if marketErr != nil {
		return m, a, marketErr
	}
	return m, a, accountErr
}

// record пишет результат в журнал. Ошибка записи только логируется.
func (s *RiskService) record(ctx context.Context, wallet, source string, entry decimal.Decimal, m *risk.Metrics) {
	if s.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	analysis := &models.RiskAnalysis{
		WalletAddress:      wallet,
		Market:             m.Market,
		Side:               string(m.Side),
		Size:               m.PositionSize,
		EntryPrice:         entry,
		Leverage:           m.Leverage,
		LiquidationPrice:   models.ClampPrice(m.LiquidationPrice),
		MarginUsagePercent: m.MarginUsagePercent,
		RiskScore:          m.RiskScore,
		Recommendations:    m.Recommendations,
		Source:             source,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.repo.Create(ctx, analysis); err != nil {
		s.logger.WithWallet(wallet).Warn("failed to persist risk analysis",
			utils.Market(m.Market),
			utils.Err(err),
		)
	}
}

// ============ Разбор полей запроса ============

func parseMarket(verrs *utils.ValidationErrors, market string) string {
	ticker := utils.NormalizeMarket(market)
	if err := utils.ValidateMarket(ticker); err != nil {
		verrs.AddError("market", err)
		return ""
	}
	return ticker
}

func parseSide(verrs *utils.ValidationErrors, side string) risk.Side {
	parsed, err := risk.ParseSide(side)
	if err != nil {
		verrs.Add("side", "must be LONG or SHORT")
		return ""
	}
	return parsed
}

func requirePositive(verrs *utils.ValidationErrors, field string, v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		verrs.Add(field, "is required")
		return decimal.Zero
	}
	if !v.Decimal.IsPositive() {
		verrs.Add(field, "must be positive")
		return decimal.Zero
	}
	return v.Decimal
}

// parseLeverage проверяет плечо по политике. Необязательное отсутствующее плечо - 0.
func (s *RiskService) parseLeverage(verrs *utils.ValidationErrors, v decimal.NullDecimal, required bool) decimal.Decimal {
	if !v.Valid {
		if required {
			verrs.Add("leverage", "is required")
		}
		return decimal.Zero
	}
	if err := s.calc.Policy().CheckLeverage(v.Decimal); err != nil {
		var inputErr *risk.InputError
		if errors.As(err, &inputErr) {
			verrs.Add(inputErr.Field, inputErr.Reason)
		} else {
			verrs.AddError("leverage", err)
		}
		return decimal.Zero
	}
	return v.Decimal
}

// parseFraction разбирает необязательную долю в диапазоне [0, 1). Отсутствует - 0,
// отличать отсутствие от явного 0 нужно по Valid исходного значения.
func parseFraction(verrs *utils.ValidationErrors, field string, v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	if v.Decimal.IsNegative() || v.Decimal.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		verrs.Add(field, "must be in range [0, 1)")
		return decimal.Zero
	}
	return v.Decimal
}

func parseMarginMode(verrs *utils.ValidationErrors, mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "":
		return models.MarginModeCross
	case models.MarginModeCross, models.MarginModeIsolated:
		return m
	default:
		verrs.Add("margin_mode", "must be cross or isolated")
		return ""
	}
}

// calcError переводит ошибки калькулятора в ошибки запроса
func calcError(err error) error {
	var inputErr *risk.InputError
	if errors.As(err, &inputErr) {
		var fields utils.ValidationErrors
		fields.Add(inputErr.Field, inputErr.Reason)
		return invalidFields(fields)
	}
	return err
}
