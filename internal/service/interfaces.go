package service

import (
	"context"
	"time"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/repository"
	"github.com/temitopeohassan/perpraid/internal/risk"
)

// IndexerClient определяет методы индексера, которые используют сервисы
type IndexerClient interface {
	GetPerpetualMarkets(ctx context.Context) (map[string]indexer.PerpetualMarket, error)
	GetPerpetualMarket(ctx context.Context, ticker string) (*indexer.PerpetualMarket, error)
	GetOrderbook(ctx context.Context, ticker string) (*indexer.Orderbook, error)
	GetCandles(ctx context.Context, ticker, resolution string, limit int) ([]indexer.Candle, error)
	GetTrades(ctx context.Context, ticker string, limit int) ([]indexer.Trade, error)
	GetHistoricalFunding(ctx context.Context, ticker string, limit int) ([]indexer.HistoricalFunding, error)
	GetSubaccount(ctx context.Context, address string, number int) (*indexer.Subaccount, error)
	GetPerpetualPositions(ctx context.Context, address string, number int, status string, limit int) ([]indexer.PerpetualPosition, error)
	GetFills(ctx context.Context, address string, number int, market string, limit int) ([]indexer.Fill, error)
	GetTransfers(ctx context.Context, address string, number int, limit int) ([]indexer.Transfer, error)
	GetHeight(ctx context.Context) (*indexer.Height, error)
}

// AnalysisRepositoryInterface определяет интерфейс журнала анализов
type AnalysisRepositoryInterface interface {
	Create(ctx context.Context, a *models.RiskAnalysis) error
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error)
	Stats(ctx context.Context, wallet string, since time.Time) (*models.AnalysisStats, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Проверяем, что реальные реализации соответствуют интерфейсам
var _ IndexerClient = (*indexer.Client)(nil)
var _ AnalysisRepositoryInterface = (*repository.AnalysisRepository)(nil)

// ============ Поставщики данных для калькулятора ============

// MarketDataProvider поставляет рыночные данные одного перпетуала:
// цену, MMF (0.03 если рынок не сообщил) и следующую ставку funding
type MarketDataProvider interface {
	Snapshot(ctx context.Context, market string) (risk.MarketSnapshot, error)
}

// AccountDataProvider поставляет equity субаккаунта и его открытые позиции
type AccountDataProvider interface {
	AccountSnapshot(ctx context.Context, wallet string) (risk.AccountSnapshot, error)
	OpenPositions(ctx context.Context, wallet string) ([]indexer.PerpetualPosition, error)
}

var _ MarketDataProvider = (*MarketService)(nil)
var _ AccountDataProvider = (*AccountService)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// MarketServiceInterface определяет интерфейс сервиса рынков
type MarketServiceInterface interface {
	ListMarkets(ctx context.Context) ([]models.MarketInfo, error)
	GetMarketData(ctx context.Context, market string) (*models.MarketData, error)
	GetOrderbook(ctx context.Context, market string, depth int) (*models.Orderbook, error)
	GetFundingHistory(ctx context.Context, market string, limit int) ([]models.FundingEntry, error)
}

// AccountServiceInterface определяет интерфейс сервиса субаккаунта
type AccountServiceInterface interface {
	GetBalance(ctx context.Context, wallet string) (*models.Balance, error)
	GetPositions(ctx context.Context, wallet string) ([]models.Position, error)
	GetTradeHistory(ctx context.Context, wallet string, limit int) ([]models.Trade, error)
	GetAccountRisk(ctx context.Context, wallet string) (*models.AccountRisk, error)
	GetTransactions(ctx context.Context, wallet string, limit int) ([]models.Transaction, error)
}

// RiskServiceInterface определяет интерфейс сервиса расчета риска
type RiskServiceInterface interface {
	LiquidationPrice(ctx context.Context, req *models.LiquidationPriceRequest) (*models.LiquidationPriceResponse, error)
	Analyze(ctx context.Context, wallet string, req *models.AnalyzeRequest) (*models.RiskMetrics, error)
	Calculate(ctx context.Context, wallet string, req *models.CalculateRequest) (*models.RiskMetrics, error)
	History(ctx context.Context, wallet string, limit int) ([]*models.RiskAnalysis, error)
	Stats(ctx context.Context, wallet, period string) (*models.AnalysisStats, error)
}

// AuthServiceInterface определяет интерфейс входа по подписи кошелька
type AuthServiceInterface interface {
	Login(req *models.LoginRequest) (*models.LoginResponse, error)
	ValidateToken(token string) (string, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ MarketServiceInterface = (*MarketService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
var _ RiskServiceInterface = (*RiskService)(nil)
var _ AuthServiceInterface = (*AuthService)(nil)
