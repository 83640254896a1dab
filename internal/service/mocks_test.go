package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/internal/websocket"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

const testWallet = "0x1111111111111111111111111111111111111111"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error"})
}

func btcMarket() indexer.PerpetualMarket {
	return indexer.PerpetualMarket{
		Ticker:                    "BTC-USD",
		Status:                    indexer.MarketStatusActive,
		OraclePrice:               d("42500"),
		PriceChange24H:            d("500"),
		Volume24H:                 d("1000000"),
		NextFundingRate:           d("0.0001"),
		InitialMarginFraction:     d("0.05"),
		MaintenanceMarginFraction: d("0.03"),
		OpenInterest:              d("1200"),
		TickSize:                  d("1"),
		StepSize:                  d("0.0001"),
	}
}

func ethMarket() indexer.PerpetualMarket {
	return indexer.PerpetualMarket{
		Ticker:                    "ETH-USD",
		Status:                    "PAUSED",
		OraclePrice:               d("2000"),
		NextFundingRate:           d("-0.0002"),
		InitialMarginFraction:     d("0.02"),
		MaintenanceMarginFraction: d("0"),
		TickSize:                  d("0.1"),
		StepSize:                  d("0.001"),
	}
}

// ============ Mock IndexerClient ============

type MockIndexerClient struct {
	mu sync.Mutex

	markets    map[string]indexer.PerpetualMarket
	orderbook  *indexer.Orderbook
	candles    []indexer.Candle
	trades     []indexer.Trade
	funding    []indexer.HistoricalFunding
	subaccount *indexer.Subaccount
	positions  []indexer.PerpetualPosition
	fills      []indexer.Fill
	transfers  []indexer.Transfer

	marketsErr    error
	marketErr     error
	orderbookErr  error
	candlesErr    error
	tradesErr     error
	fundingErr    error
	subaccountErr error
	positionsErr  error
	fillsErr      error
	transfersErr  error
	heightErr     error

	marketsCalls int
	marketCalls  int
}

func NewMockIndexerClient() *MockIndexerClient {
	return &MockIndexerClient{
		markets: map[string]indexer.PerpetualMarket{
			"BTC-USD": btcMarket(),
			"ETH-USD": ethMarket(),
		},
	}
}

func (m *MockIndexerClient) GetPerpetualMarkets(ctx context.Context) (map[string]indexer.PerpetualMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketsCalls++
	if m.marketsErr != nil {
		return nil, m.marketsErr
	}
	out := make(map[string]indexer.PerpetualMarket, len(m.markets))
	for k, v := range m.markets {
		out[k] = v
	}
	return out, nil
}

func (m *MockIndexerClient) GetPerpetualMarket(ctx context.Context, ticker string) (*indexer.PerpetualMarket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marketCalls++
	if m.marketErr != nil {
		return nil, m.marketErr
	}
	market, ok := m.markets[ticker]
	if !ok {
		return nil, indexer.ErrNotFound
	}
	return &market, nil
}

func (m *MockIndexerClient) GetOrderbook(ctx context.Context, ticker string) (*indexer.Orderbook, error) {
	if m.orderbookErr != nil {
		return nil, m.orderbookErr
	}
	if m.orderbook == nil {
		return nil, indexer.ErrNotFound
	}
	return m.orderbook, nil
}

func (m *MockIndexerClient) GetCandles(ctx context.Context, ticker, resolution string, limit int) ([]indexer.Candle, error) {
	if m.candlesErr != nil {
		return nil, m.candlesErr
	}
	return m.candles, nil
}

func (m *MockIndexerClient) GetTrades(ctx context.Context, ticker string, limit int) ([]indexer.Trade, error) {
	if m.tradesErr != nil {
		return nil, m.tradesErr
	}
	return m.trades, nil
}

func (m *MockIndexerClient) GetHistoricalFunding(ctx context.Context, ticker string, limit int) ([]indexer.HistoricalFunding, error) {
	if m.fundingErr != nil {
		return nil, m.fundingErr
	}
	return m.funding, nil
}

func (m *MockIndexerClient) GetSubaccount(ctx context.Context, address string, number int) (*indexer.Subaccount, error) {
	if m.subaccountErr != nil {
		return nil, m.subaccountErr
	}
	if m.subaccount == nil {
		return nil, indexer.ErrNotFound
	}
	return m.subaccount, nil
}

func (m *MockIndexerClient) GetPerpetualPositions(ctx context.Context, address string, number int, status string, limit int) ([]indexer.PerpetualPosition, error) {
	if m.positionsErr != nil {
		return nil, m.positionsErr
	}
	out := make([]indexer.PerpetualPosition, len(m.positions))
	copy(out, m.positions)
	return out, nil
}

func (m *MockIndexerClient) GetFills(ctx context.Context, address string, number int, market string, limit int) ([]indexer.Fill, error) {
	if m.fillsErr != nil {
		return nil, m.fillsErr
	}
	return m.fills, nil
}

func (m *MockIndexerClient) GetTransfers(ctx context.Context, address string, number int, limit int) ([]indexer.Transfer, error) {
	if m.transfersErr != nil {
		return nil, m.transfersErr
	}
	return m.transfers, nil
}

func (m *MockIndexerClient) GetHeight(ctx context.Context) (*indexer.Height, error) {
	if m.heightErr != nil {
		return nil, m.heightErr
	}
	return &indexer.Height{Height: "1000", Time: "2024-01-01T00:00:00.000Z"}, nil
}

// ============ Mock AnalysisRepository ============

type MockAnalysisRepository struct {
	mu       sync.Mutex
	analyses []*models.RiskAnalysis
	nextID   int64

	createErr error
	listErr   error
	statsErr  error
	deleteErr error
	pingErr   error

	statsSince time.Time
}

func NewMockAnalysisRepository() *MockAnalysisRepository {
	return &MockAnalysisRepository{nextID: 1}
}

func (m *MockAnalysisRepository) Create(ctx context.Context, a *models.RiskAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	a.ID = m.nextID
	m.nextID++
	m.analyses = append(m.analyses, a)
	return nil
}

func (m *MockAnalysisRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]*models.RiskAnalysis, 0)
	for i := len(m.analyses) - 1; i >= 0 && len(result) < limit; i-- {
		if m.analyses[i].WalletAddress == wallet {
			result = append(result, m.analyses[i])
		}
	}
	return result, nil
}

func (m *MockAnalysisRepository) Stats(ctx context.Context, wallet string, since time.Time) (*models.AnalysisStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statsSince = since
	if m.statsErr != nil {
		return nil, m.statsErr
	}

	stats := &models.AnalysisStats{WalletAddress: wallet, ByMarket: []models.MarketCount{}}
	counts := map[string]int{}
	total := 0
	for _, a := range m.analyses {
		if a.WalletAddress != wallet || a.CreatedAt.Before(since) {
			continue
		}
		stats.TotalAnalyses++
		total += a.RiskScore
		if a.RiskScore > stats.MaxRiskScore {
			stats.MaxRiskScore = a.RiskScore
		}
		counts[a.Market]++
	}
	if stats.TotalAnalyses > 0 {
		stats.AverageRiskScore = float64(total) / float64(stats.TotalAnalyses)
	}
	for market, count := range counts {
		stats.ByMarket = append(stats.ByMarket, models.MarketCount{Market: market, Count: count})
	}
	sort.Slice(stats.ByMarket, func(i, j int) bool { return stats.ByMarket[i].Market < stats.ByMarket[j].Market })
	return stats, nil
}

func (m *MockAnalysisRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return 0, nil
}

func (m *MockAnalysisRepository) Ping(ctx context.Context) error {
	return m.pingErr
}

func (m *MockAnalysisRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.analyses)
}

// ============ Mock поставщики данных калькулятора ============

type MockMarketProvider struct {
	snapshots map[string]risk.MarketSnapshot
	err       error
	calls     int
}

func NewMockMarketProvider() *MockMarketProvider {
	return &MockMarketProvider{
		snapshots: map[string]risk.MarketSnapshot{
			"BTC-USD": {
				Market:                    "BTC-USD",
				MarkPrice:                 d("42500"),
				OraclePrice:               d("42500"),
				NextFundingRate:           d("0.0001"),
				MaintenanceMarginFraction: d("0.03"),
			},
		},
	}
}

func (m *MockMarketProvider) Snapshot(ctx context.Context, market string) (risk.MarketSnapshot, error) {
	m.calls++
	if m.err != nil {
		return risk.MarketSnapshot{}, m.err
	}
	s, ok := m.snapshots[market]
	if !ok {
		return risk.MarketSnapshot{}, ErrMarketNotFound
	}
	return s, nil
}

type MockAccountProvider struct {
	equity     decimal.Decimal
	positions  []indexer.PerpetualPosition
	accountErr error
	posErr     error
}

func NewMockAccountProvider() *MockAccountProvider {
	return &MockAccountProvider{
		equity: d("10000"),
		positions: []indexer.PerpetualPosition{
			{Market: "BTC-USD", Status: "OPEN", Side: "LONG", Size: d("0.5"), EntryPrice: d("42000")},
		},
	}
}

func (m *MockAccountProvider) AccountSnapshot(ctx context.Context, wallet string) (risk.AccountSnapshot, error) {
	if m.accountErr != nil {
		return risk.AccountSnapshot{}, m.accountErr
	}
	return risk.AccountSnapshot{Equity: m.equity}, nil
}

func (m *MockAccountProvider) OpenPositions(ctx context.Context, wallet string) ([]indexer.PerpetualPosition, error) {
	if m.posErr != nil {
		return nil, m.posErr
	}
	return m.positions, nil
}

// ============ Mock монитора ============

type MockStream struct {
	mu           sync.Mutex
	onMessage    func(indexer.StreamMessage)
	onConnect    func()
	onDisconnect func(error)

	subscriptions []string
	connectErr    error
	connectCalls  int
	closed        bool
}

func (m *MockStream) SetOnMessage(handler func(indexer.StreamMessage)) { m.onMessage = handler }
func (m *MockStream) SetOnConnect(handler func())                      { m.onConnect = handler }
func (m *MockStream) SetOnDisconnect(handler func(error))              { m.onDisconnect = handler }

func (m *MockStream) Subscribe(channel, id string) error {
	m.subscriptions = append(m.subscriptions, channel)
	return nil
}

func (m *MockStream) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	if m.onConnect != nil {
		m.onConnect()
	}
	return nil
}

func (m *MockStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type MockTickApplier struct {
	mu    sync.Mutex
	ticks []indexer.MarketTick
}

func (m *MockTickApplier) ApplyTicks(ticks []indexer.MarketTick) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks = append(m.ticks, ticks...)
	return len(ticks)
}

type MockRiskSource struct {
	mu     sync.Mutex
	levels map[string]string
	err    error
	calls  int
}

func (m *MockRiskSource) GetAccountRisk(ctx context.Context, wallet string) (*models.AccountRisk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	level, ok := m.levels[wallet]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &models.AccountRisk{
		WalletAddress:    wallet,
		TotalMarginRatio: d("0.75"),
		LiquidationRisk:  level,
		Warnings:         []string{},
	}, nil
}

func (m *MockRiskSource) setLevel(wallet, level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[wallet] = level
}

type marketUpdate struct {
	market string
	data   websocket.MarketData
}

type riskAlert struct {
	wallet string
	data   websocket.RiskAlertData
}

type MockBroadcaster struct {
	mu         sync.Mutex
	updates    []marketUpdate
	alerts     []riskAlert
	statuses   []bool
	subscribed []string
}

func (m *MockBroadcaster) BroadcastMarketUpdate(market string, data websocket.MarketData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, marketUpdate{market: market, data: data})
}

func (m *MockBroadcaster) BroadcastRiskAlert(wallet string, data websocket.RiskAlertData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, riskAlert{wallet: wallet, data: data})
}

func (m *MockBroadcaster) BroadcastStreamStatus(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, connected)
}

func (m *MockBroadcaster) SubscribedWallets() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subscribed...)
}

func (m *MockBroadcaster) alertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}
