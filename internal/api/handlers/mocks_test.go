package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/service"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// ErrMockUnexpected - непредвиденная ошибка для проверки 500
var ErrMockUnexpected = errors.New("mock: unexpected failure")

const testWallet = "0x1111111111111111111111111111111111111111"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Output: "stderr"})
}

// ============ Mock Market Service ============

// MockMarketService мок для MarketServiceInterface
type MockMarketService struct {
	markets []models.MarketInfo
	data    map[string]*models.MarketData
	funding []models.FundingEntry
	err     error

	lastDepth int
	lastLimit int
}

func NewMockMarketService() *MockMarketService {
	return &MockMarketService{
		markets: []models.MarketInfo{
			{Market: "BTC-USD", BaseAsset: "BTC", QuoteAsset: "USDC", MaxLeverage: d("20"), Status: models.MarketStatusActive},
			{Market: "ETH-USD", BaseAsset: "ETH", QuoteAsset: "USDC", MaxLeverage: d("20"), Status: models.MarketStatusActive},
		},
		data: map[string]*models.MarketData{
			"BTC-USD": {Market: "BTC-USD", MarkPrice: d("42500"), IndexPrice: d("42500"), FundingRate: d("0.0000125")},
		},
		funding: []models.FundingEntry{
			{Market: "BTC-USD", Rate: d("0.00001"), Price: d("42000"), EffectiveAt: "2024-01-01T00:00:00.000Z"},
		},
	}
}

func (m *MockMarketService) ListMarkets(ctx context.Context) ([]models.MarketInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.markets, nil
}

func (m *MockMarketService) GetMarketData(ctx context.Context, market string) (*models.MarketData, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, ok := m.data[utils.NormalizeMarket(market)]
	if !ok {
		return nil, service.ErrMarketNotFound
	}
	return data, nil
}

func (m *MockMarketService) GetOrderbook(ctx context.Context, market string, depth int) (*models.Orderbook, error) {
	m.lastDepth = depth
	if m.err != nil {
		return nil, m.err
	}
	return &models.Orderbook{
		Market: utils.NormalizeMarket(market),
		Bids:   []models.OrderbookLevel{{Price: d("42499"), Size: d("1.5")}},
		Asks:   []models.OrderbookLevel{{Price: d("42501"), Size: d("0.7")}},
	}, nil
}

func (m *MockMarketService) GetFundingHistory(ctx context.Context, market string, limit int) ([]models.FundingEntry, error) {
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.funding, nil
}

// ============ Mock Account Service ============

// MockAccountService мок для AccountServiceInterface, запоминает кошелек вызова
type MockAccountService struct {
	err        error
	lastWallet string
	lastLimit  int
}

func (m *MockAccountService) GetBalance(ctx context.Context, wallet string) (*models.Balance, error) {
	m.lastWallet = wallet
	if m.err != nil {
		return nil, m.err
	}
	return &models.Balance{
		WalletAddress:    wallet,
		TotalBalance:     d("10000"),
		AvailableBalance: d("7000"),
		MarginUsed:       d("3000"),
		Currency:         models.QuoteAsset,
	}, nil
}

func (m *MockAccountService) GetPositions(ctx context.Context, wallet string) ([]models.Position, error) {
	m.lastWallet = wallet
	if m.err != nil {
		return nil, m.err
	}
	return []models.Position{
		{PositionID: "BTC-USD-LONG", Market: "BTC-USD", Side: "LONG", Size: d("0.5"), EntryPrice: d("42000")},
	}, nil
}

func (m *MockAccountService) GetTradeHistory(ctx context.Context, wallet string, limit int) ([]models.Trade, error) {
	m.lastWallet = wallet
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return []models.Trade{}, nil
}

func (m *MockAccountService) GetAccountRisk(ctx context.Context, wallet string) (*models.AccountRisk, error) {
	m.lastWallet = wallet
	if m.err != nil {
		return nil, m.err
	}
	return &models.AccountRisk{
		WalletAddress:    wallet,
		TotalMarginRatio: d("0.06375"),
		LiquidationRisk:  "low",
		ExposureByMarket: map[string]decimal.Decimal{"BTC-USD": d("21000")},
		Warnings:         []string{},
	}, nil
}

func (m *MockAccountService) GetTransactions(ctx context.Context, wallet string, limit int) ([]models.Transaction, error) {
	m.lastWallet = wallet
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return []models.Transaction{{TxHash: "0xabc", Type: models.TransactionDeposit}}, nil
}

// ============ Mock Risk Service ============

// MockRiskService мок для RiskServiceInterface
type MockRiskService struct {
	err error

	lastWallet    string
	lastLimit     int
	lastPeriod    string
	lastLiqReq    *models.LiquidationPriceRequest
	lastAnalyze   *models.AnalyzeRequest
	lastCalculate *models.CalculateRequest
}

func (m *MockRiskService) LiquidationPrice(ctx context.Context, req *models.LiquidationPriceRequest) (*models.LiquidationPriceResponse, error) {
	m.lastLiqReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.LiquidationPriceResponse{
		Market:                    req.Market,
		Side:                      req.Side,
		LiquidationPrice:          d("34860"),
		EntryPrice:                req.EntryPrice.Decimal,
		Leverage:                  req.Leverage.Decimal,
		MarginMode:                models.MarginModeCross,
		MaintenanceMarginFraction: d("0.03"),
		DistanceToLiquidation:     d("17"),
	}, nil
}

func (m *MockRiskService) Analyze(ctx context.Context, wallet string, req *models.AnalyzeRequest) (*models.RiskMetrics, error) {
	m.lastWallet = wallet
	m.lastAnalyze = req
	if m.err != nil {
		return nil, m.err
	}
	return testMetrics(), nil
}

func (m *MockRiskService) Calculate(ctx context.Context, wallet string, req *models.CalculateRequest) (*models.RiskMetrics, error) {
	m.lastWallet = wallet
	m.lastCalculate = req
	if m.err != nil {
		return nil, m.err
	}
	return testMetrics(), nil
}

func (m *MockRiskService) History(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error) {
	m.lastWallet = wallet
	m.lastLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return nil, nil
}

func (m *MockRiskService) Stats(ctx context.Context, wallet, period string) (*models.AnalysisStats, error) {
	m.lastWallet = wallet
	m.lastPeriod = period
	if m.err != nil {
		return nil, m.err
	}
	return &models.AnalysisStats{WalletAddress: wallet, Period: period, TotalAnalyses: 3, MaxRiskScore: 50}, nil
}

func testMetrics() *models.RiskMetrics {
	return &models.RiskMetrics{
		Market:           "BTC-USD",
		Side:             "LONG",
		Leverage:         d("5"),
		MarginMode:       models.MarginModeCross,
		LiquidationPrice: d("34860"),
		RiskScore:        30,
		Recommendations:  []string{},
	}
}

// ============ Mock Auth Service ============

// MockAuthService принимает подпись "valid" и токены вида "token-<wallet>"
type MockAuthService struct {
	err error
}

func (m *MockAuthService) Login(req *models.LoginRequest) (*models.LoginResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	if req.Signature != "valid" {
		return nil, service.ErrInvalidSignature
	}
	return &models.LoginResponse{
		Token:     "token-" + strings.ToLower(req.Address),
		Address:   strings.ToLower(req.Address),
		ExpiresAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (m *MockAuthService) ValidateToken(token string) (string, error) {
	if !strings.HasPrefix(token, "token-") {
		return "", service.ErrInvalidToken
	}
	return strings.TrimPrefix(token, "token-"), nil
}

// ============ Health mocks ============

type mockPinger struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (m *mockPinger) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.err
}

type mockStream struct{ connected bool }

func (m mockStream) IsConnected() bool { return m.connected }

type mockClients int

func (m mockClients) ClientCount() int { return int(m) }
