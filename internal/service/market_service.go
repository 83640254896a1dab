package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// DefaultMarketCacheTTL - время жизни записи кэша рынков без обновлений из потока
const DefaultMarketCacheTTL = 30 * time.Second

var hundred = decimal.NewFromInt(100)

// MarketService предоставляет рыночные данные индексера
//
// Кэш рынков:
// - заполняется списком /perpetualMarkets и запросами отдельных рынков
// - обновляется тиками канала v4_markets (ApplyTicks)
// - запись старше ttl перечитывается из REST
//
// Реализует MarketDataProvider для калькулятора риска.
type MarketService struct {
	client IndexerClient
	policy risk.Policy
	ttl    time.Duration
	now    func() time.Time
	logger *utils.Logger

	mu        sync.RWMutex
	markets   map[string]indexer.PerpetualMarket
	updatedAt map[string]time.Time
	listedAt  time.Time
}

// NewMarketService создает новый экземпляр MarketService
func NewMarketService(client IndexerClient, policy risk.Policy, ttl time.Duration, logger *utils.Logger) *MarketService {
	if ttl <= 0 {
		ttl = DefaultMarketCacheTTL
	}
	if logger == nil {
		logger = utils.L()
	}
	return &MarketService{
		client:    client,
		policy:    policy,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.WithComponent("market_service"),
		markets:   make(map[string]indexer.PerpetualMarket),
		updatedAt: make(map[string]time.Time),
	}
}

// ListMarkets возвращает все перпетуальные рынки, отсортированные по тикеру
func (s *MarketService) ListMarkets(ctx context.Context) ([]models.MarketInfo, error) {
	markets, err := s.allMarkets(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.MarketInfo, 0, len(markets))
	for _, m := range markets {
		result = append(result, s.toMarketInfo(m))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Market < result[j].Market })
	return result, nil
}

// GetMarketData возвращает состояние рынка и статистику дневной свечи.
// Свеча и последняя сделка не обязательны: при ошибке используются поля рынка.
func (s *MarketService) GetMarketData(ctx context.Context, market string) (*models.MarketData, error) {
	ticker, err := normalizeMarket(market)
	if err != nil {
		return nil, err
	}

	m, err := s.market(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var (
		wg        sync.WaitGroup
		candles   []indexer.Candle
		trades    []indexer.Trade
		candleErr error
		tradeErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		candles, candleErr = s.client.GetCandles(ctx, ticker, indexer.Resolution1Day, 1)
	}()
	go func() {
		defer wg.Done()
		trades, tradeErr = s.client.GetTrades(ctx, ticker, 1)
	}()
	wg.Wait()

	log := s.logger.WithMarket(ticker)
	if candleErr != nil {
		log.Warn("daily candle unavailable", utils.Err(candleErr))
	}
	if tradeErr != nil {
		log.Warn("last trade unavailable", utils.Err(tradeErr))
	}

	data := &models.MarketData{
		Market:          ticker,
		MarkPrice:       m.OraclePrice,
		IndexPrice:      m.OraclePrice,
		FundingRate:     m.NextFundingRate,
		NextFundingTime: s.nextFundingTime().Format(time.RFC3339),
		OpenInterest:    m.OpenInterest,
		Volume24h:       m.Volume24H,
		PriceChange24h:  percentChange(m.OraclePrice.Sub(m.PriceChange24H), m.OraclePrice),
	}

	if len(candles) > 0 {
		c := candles[0]
		data.Volume24h = c.USDVolume
		data.PriceChange24h = percentChange(c.Open, c.Close)
		data.High24h = c.High
		data.Low24h = c.Low
	}
	if len(trades) > 0 {
		data.LastTradePrice = trades[0].Price
	}

	return data, nil
}

// GetOrderbook возвращает стакан рынка. depth <= 0 - без ограничения глубины.
func (s *MarketService) GetOrderbook(ctx context.Context, market string, depth int) (*models.Orderbook, error) {
	ticker, err := normalizeMarket(market)
	if err != nil {
		return nil, err
	}

	book, err := s.client.GetOrderbook(ctx, ticker)
	if err != nil {
		return nil, upstream(err, "orderbook", ErrMarketNotFound)
	}

	return &models.Orderbook{
		Market: ticker,
		Bids:   toLevels(book.Bids, depth),
		Asks:   toLevels(book.Asks, depth),
	}, nil
}

// GetFundingHistory возвращает историю начислений funding, новые первыми
func (s *MarketService) GetFundingHistory(ctx context.Context, market string, limit int) ([]models.FundingEntry, error) {
	ticker, err := normalizeMarket(market)
	if err != nil {
		return nil, err
	}

	history, err := s.client.GetHistoricalFunding(ctx, ticker, limit)
	if err != nil {
		return nil, upstream(err, "funding", ErrMarketNotFound)
	}

	result := make([]models.FundingEntry, 0, len(history))
	for _, h := range history {
		result = append(result, models.FundingEntry{
			Market:      ticker,
			Rate:        h.Rate,
			Price:       h.Price,
			EffectiveAt: h.EffectiveAt,
		})
	}
	return result, nil
}

// Snapshot возвращает рыночные данные для калькулятора.
// Индексер v4 не отдает mark price отдельно, используется oracle price.
func (s *MarketService) Snapshot(ctx context.Context, market string) (risk.MarketSnapshot, error) {
	ticker, err := normalizeMarket(market)
	if err != nil {
		return risk.MarketSnapshot{}, err
	}

	m, err := s.market(ctx, ticker)
	if err != nil {
		return risk.MarketSnapshot{}, err
	}

	return risk.MarketSnapshot{
		Market:                    ticker,
		MarkPrice:                 m.OraclePrice,
		OraclePrice:               m.OraclePrice,
		NextFundingRate:           m.NextFundingRate,
		MaintenanceMarginFraction: s.policy.MaintenanceMarginFor(ticker, m.MaintenanceMarginFraction),
	}, nil
}

// Prices возвращает текущие цены и MMF по всем рынкам
func (s *MarketService) Prices(ctx context.Context) (prices, mmf map[string]decimal.Decimal, err error) {
	markets, err := s.allMarkets(ctx)
	if err != nil {
		return nil, nil, err
	}

	prices = make(map[string]decimal.Decimal, len(markets))
	mmf = make(map[string]decimal.Decimal, len(markets))
	for ticker, m := range markets {
		prices[ticker] = m.OraclePrice
		mmf[ticker] = s.policy.MaintenanceMarginFor(ticker, m.MaintenanceMarginFraction)
	}
	return prices, mmf, nil
}

// ApplyTicks применяет изменения из потока к кэшу.
// Рынки, которых нет в кэше, пропускаются: без снимка REST у них нет MMF.
// Возвращает количество обновленных рынков.
func (s *MarketService) ApplyTicks(ticks []indexer.MarketTick) int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, t := range ticks {
		m, ok := s.markets[t.Ticker]
		if !ok {
			continue
		}
		if t.Status != "" {
			m.Status = t.Status
		}
		if t.OraclePrice.Valid {
			m.OraclePrice = t.OraclePrice.Decimal
			s.updatedAt[t.Ticker] = now
		}
		if t.NextFundingRate.Valid {
			m.NextFundingRate = t.NextFundingRate.Decimal
		}
		if t.OpenInterest.Valid {
			m.OpenInterest = t.OpenInterest.Decimal
		}
		if t.PriceChange24H.Valid {
			m.PriceChange24H = t.PriceChange24H.Decimal
		}
		if t.Volume24H.Valid {
			m.Volume24H = t.Volume24H.Decimal
		}
		s.markets[t.Ticker] = m
		applied++
	}
	return applied
}

// CachedMarkets возвращает количество рынков в кэше
func (s *MarketService) CachedMarkets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markets)
}

// market возвращает рынок из кэша или индексера
func (s *MarketService) market(ctx context.Context, ticker string) (indexer.PerpetualMarket, error) {
	now := s.now()

	s.mu.RLock()
	m, ok := s.markets[ticker]
	fresh := ok && now.Sub(s.updatedAt[ticker]) < s.ttl
	s.mu.RUnlock()

	if fresh {
		return m, nil
	}

	fetched, err := s.client.GetPerpetualMarket(ctx, ticker)
	if err != nil {
		return indexer.PerpetualMarket{}, upstream(err, "market "+ticker, ErrMarketNotFound)
	}

	s.mu.Lock()
	s.markets[ticker] = *fetched
	s.updatedAt[ticker] = now
	s.mu.Unlock()

	return *fetched, nil
}

// allMarkets возвращает копию всех рынков, перечитывая список после ttl
func (s *MarketService) allMarkets(ctx context.Context) (map[string]indexer.PerpetualMarket, error) {
	now := s.now()

	s.mu.RLock()
	fresh := !s.listedAt.IsZero() && now.Sub(s.listedAt) < s.ttl
	if fresh {
		out := make(map[string]indexer.PerpetualMarket, len(s.markets))
		for k, v := range s.markets {
			out[k] = v
		}
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	markets, err := s.client.GetPerpetualMarkets(ctx)
	if err != nil {
		return nil, upstream(err, "markets", nil)
	}

	s.mu.Lock()
	for ticker, m := range markets {
		s.markets[ticker] = m
		s.updatedAt[ticker] = now
	}
	s.listedAt = now
	s.mu.Unlock()

	return markets, nil
}

func (s *MarketService) toMarketInfo(m indexer.PerpetualMarket) models.MarketInfo {
	base := m.Ticker
	if i := strings.Index(base, "-"); i > 0 {
		base = base[:i]
	}

	status := models.MarketStatusSuspended
	if m.IsActive() {
		status = models.MarketStatusActive
	}

	maxLeverage := m.MaxLeverage()
	if maxLeverage.IsZero() || maxLeverage.GreaterThan(s.policy.MaxLeverage) {
		maxLeverage = s.policy.MaxLeverage
	}

	return models.MarketInfo{
		Market:       m.Ticker,
		BaseAsset:    base,
		QuoteAsset:   models.QuoteAsset,
		MinOrderSize: m.StepSize,
		MaxLeverage:  maxLeverage,
		TickSize:     m.TickSize,
		StepSize:     m.StepSize,
		Status:       status,
	}
}

// nextFundingTime - ближайшая граница funding-интервала по UTC
func (s *MarketService) nextFundingTime() time.Time {
	perDay := s.policy.FundingIntervalsPerDay
	if perDay <= 0 {
		perDay = risk.FundingIntervalsPerDay
	}
	interval := 24 * time.Hour / time.Duration(perDay)
	now := s.now().UTC()
	return now.Truncate(interval).Add(interval)
}

// percentChange = (to - from) / from * 100, 0 при from <= 0
func percentChange(from, to decimal.Decimal) decimal.Decimal {
	if !from.IsPositive() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

func toLevels(levels []indexer.OrderbookLevel, depth int) []models.OrderbookLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	result := make([]models.OrderbookLevel, 0, len(levels))
	for _, l := range levels {
		result = append(result, models.OrderbookLevel{Price: l.Price, Size: l.Size})
	}
	return result
}

func normalizeMarket(market string) (string, error) {
	if err := utils.ValidateMarket(market); err != nil {
		return "", invalidRequest("market", err)
	}
	return utils.NormalizeMarket(market), nil
}
