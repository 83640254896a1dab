package service

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/indexer"
	"github.com/temitopeohassan/perpraid/internal/metrics"
	"github.com/temitopeohassan/perpraid/internal/models"
	"github.com/temitopeohassan/perpraid/internal/risk"
	"github.com/temitopeohassan/perpraid/pkg/utils"
)

// DefaultSubaccount - субаккаунт кросс-маржи dYdX v4
const DefaultSubaccount = 0

// positionsLimit - верхняя граница открытых позиций в одном запросе
const positionsLimit = 100

// PriceSource поставляет текущие цены и MMF всех рынков
type PriceSource interface {
	Prices(ctx context.Context) (prices, mmf map[string]decimal.Decimal, err error)
}

var _ PriceSource = (*MarketService)(nil)

// AccountService предоставляет данные субаккаунта кошелька
//
// Функции:
// - GetBalance: equity, свободный и занятый collateral
// - GetPositions: открытые позиции с PnL и ценой ликвидации от калькулятора
// - GetTradeHistory / GetTransactions: исполнения и переводы
// - GetAccountRisk: сводка рисков субаккаунта
//
// Реализует AccountDataProvider для калькулятора риска.
type AccountService struct {
	client     IndexerClient
	prices     PriceSource
	calc       *risk.Calculator
	subaccount int
	logger     *utils.Logger
}

// NewAccountService создает новый экземпляр AccountService
func NewAccountService(client IndexerClient, prices PriceSource, calc *risk.Calculator, logger *utils.Logger) *AccountService {
	if logger == nil {
		logger = utils.L()
	}
	return &AccountService{
		client:     client,
		prices:     prices,
		calc:       calc,
		subaccount: DefaultSubaccount,
		logger:     logger.WithComponent("account_service"),
	}
}

// GetBalance возвращает баланс субаккаунта
func (s *AccountService) GetBalance(ctx context.Context, wallet string) (*models.Balance, error) {
	sub, err := s.subaccountOf(ctx, wallet)
	if err != nil {
		return nil, err
	}

	marginUsed := sub.Equity.Sub(sub.FreeCollateral)
	if marginUsed.IsNegative() {
		marginUsed = decimal.Zero
	}

	return &models.Balance{
		WalletAddress:    wallet,
		TotalBalance:     sub.Equity,
		AvailableBalance: sub.FreeCollateral,
		MarginUsed:       marginUsed,
		Currency:         models.QuoteAsset,
	}, nil
}

// GetPositions возвращает открытые позиции с метриками калькулятора.
//
// Плечо позиции = notional / equity субаккаунта (кросс-маржа).
// Цена ликвидации считается по этому плечу и MMF рынка, отрицательная показывается как 0.
func (s *AccountService) GetPositions(ctx context.Context, wallet string) ([]models.Position, error) {
	sub, err := s.subaccountOf(ctx, wallet)
	if err != nil {
		return nil, err
	}

	positions, err := s.OpenPositions(ctx, wallet)
	if err != nil {
		return nil, err
	}

	prices, mmf, err := s.prices.Prices(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		result = append(result, s.toPosition(p, sub.Equity, prices, mmf))
	}
	return result, nil
}

func (s *AccountService) toPosition(p indexer.PerpetualPosition, equity decimal.Decimal, prices, mmf map[string]decimal.Decimal) models.Position {
	size := p.Size.Abs()
	mark, ok := prices[p.Market]
	if !ok || !mark.IsPositive() {
		mark = p.EntryPrice
	}
	marketMMF, ok := mmf[p.Market]
	if !ok {
		marketMMF = s.calc.Policy().MaintenanceMarginFor(p.Market, decimal.Zero)
	}

	pos := models.Position{
		PositionID:    models.PositionID(p.Market, p.Side),
		Market:        p.Market,
		Side:          p.Side,
		Size:          size,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     mark,
		MarginMode:    models.MarginModeCross,
		UnrealizedPnL: p.UnrealizedPnl,
		RealizedPnL:   p.RealizedPnl,
		OpenedAt:      p.CreatedAt,
	}

	side, err := risk.ParseSide(p.Side)
	if err != nil {
		s.logger.Warn("position with unknown side", utils.Market(p.Market), utils.Side(p.Side))
		return pos
	}

	notional := size.Mul(mark)
	pos.Leverage = effectiveLeverage(notional, equity)
	pos.MarginRatio = s.calc.MarginRatio(equity, notional.Mul(marketMMF))

	if pnl, err := s.calc.PnL(p.EntryPrice, mark, size, side); err == nil {
		pos.UnrealizedPnL = pnl
	}
	if pct, err := s.calc.PnLPercentage(p.EntryPrice, mark, side); err == nil {
		pos.PnLPercent = pct
	}
	if liq, err := s.calc.LiquidationPrice(p.EntryPrice, size, pos.Leverage, side, marketMMF); err == nil {
		pos.LiquidationPrice = models.ClampPrice(liq)
	}

	return pos
}

// GetTradeHistory возвращает последние исполнения субаккаунта
func (s *AccountService) GetTradeHistory(ctx context.Context, wallet string, limit int) ([]models.Trade, error) {
	fills, err := s.client.GetFills(ctx, wallet, s.subaccount, "", limit)
	if err != nil {
		return nil, upstream(err, "fills", ErrAccountNotFound)
	}

	result := make([]models.Trade, 0, len(fills))
	for _, f := range fills {
		result = append(result, models.Trade{
			TradeID:     f.ID,
			Market:      f.Market,
			Side:        f.Side,
			Size:        f.Size,
			Price:       f.Price,
			RealizedPnL: decimal.Zero, // индексер не отдает PnL исполнения
			Fee:         f.Fee,
			Liquidity:   f.Liquidity,
			Timestamp:   f.CreatedAt,
		})
	}
	return result, nil
}

// GetTransactions возвращает депозиты, выводы и переводы субаккаунта
func (s *AccountService) GetTransactions(ctx context.Context, wallet string, limit int) ([]models.Transaction, error) {
	transfers, err := s.client.GetTransfers(ctx, wallet, s.subaccount, limit)
	if err != nil {
		return nil, upstream(err, "transfers", ErrAccountNotFound)
	}

	result := make([]models.Transaction, 0, len(transfers))
	for _, t := range transfers {
		hash := t.TransactionHash
		if hash == "" {
			hash = t.ID
		}
		status := models.TransactionPending
		if t.CreatedAtHeight != "" {
			status = models.TransactionConfirmed
		}
		result = append(result, models.Transaction{
			TxHash:    hash,
			Type:      transferType(t.Type),
			Amount:    t.Size,
			Symbol:    t.Symbol,
			Status:    status,
			Timestamp: t.CreatedAt,
		})
	}
	return result, nil
}

func transferType(t string) string {
	switch strings.ToUpper(t) {
	case "DEPOSIT":
		return models.TransactionDeposit
	case "WITHDRAWAL":
		return models.TransactionWithdrawal
	case "TRANSFER_IN":
		return models.TransactionTransferIn
	case "TRANSFER_OUT":
		return models.TransactionTransferOut
	default:
		return strings.ToLower(t)
	}
}

// GetAccountRisk возвращает сводку рисков субаккаунта.
//
// Поддерживающая маржа считается калькулятором по текущим ценам и MMF рынков,
// уровень риска и предупреждения - risk.AssessAccount.
func (s *AccountService) GetAccountRisk(ctx context.Context, wallet string) (*models.AccountRisk, error) {
	sub, err := s.subaccountOf(ctx, wallet)
	if err != nil {
		return nil, err
	}

	snapshots := make([]risk.PositionSnapshot, 0, len(sub.OpenPerpetualPositions))
	for _, p := range sub.OpenPerpetualPositions {
		side, err := risk.ParseSide(p.Side)
		if err != nil {
			continue
		}
		snapshots = append(snapshots, risk.PositionSnapshot{
			Market:     p.Market,
			Side:       side,
			Size:       p.Size.Abs(),
			EntryPrice: p.EntryPrice,
		})
	}

	var prices, mmf map[string]decimal.Decimal
	if len(snapshots) > 0 {
		prices, mmf, err = s.prices.Prices(ctx)
		if err != nil {
			return nil, err
		}
	}

	maintenance := s.calc.MaintenanceMargin(snapshots, prices, mmf)
	assessment := s.calc.AssessAccount(sub.Equity, maintenance, snapshots)
	metrics.AccountsAtRisk.WithLabelValues(string(assessment.LiquidationRisk)).Inc()

	return &models.AccountRisk{
		WalletAddress:     wallet,
		TotalMarginRatio:  assessment.TotalMarginRatio,
		MaintenanceMargin: assessment.MaintenanceMargin,
		AccountEquity:     sub.Equity,
		LiquidationRisk:   string(assessment.LiquidationRisk),
		ExposureByMarket:  assessment.ExposureByMarket,
		Warnings:          assessment.Warnings,
	}, nil
}

// AccountSnapshot возвращает equity субаккаунта для калькулятора
func (s *AccountService) AccountSnapshot(ctx context.Context, wallet string) (risk.AccountSnapshot, error) {
	sub, err := s.subaccountOf(ctx, wallet)
	if err != nil {
		return risk.AccountSnapshot{}, err
	}
	return risk.AccountSnapshot{Equity: sub.Equity}, nil
}

// OpenPositions возвращает открытые позиции субаккаунта, отсортированные по рынку
func (s *AccountService) OpenPositions(ctx context.Context, wallet string) ([]indexer.PerpetualPosition, error) {
	positions, err := s.client.GetPerpetualPositions(ctx, wallet, s.subaccount, indexer.PositionStatusOpen, positionsLimit)
	if err != nil {
		return nil, upstream(err, "positions", ErrAccountNotFound)
	}
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].Market < positions[j].Market })
	return positions, nil
}

func (s *AccountService) subaccountOf(ctx context.Context, wallet string) (*indexer.Subaccount, error) {
	sub, err := s.client.GetSubaccount(ctx, wallet, s.subaccount)
	if err != nil {
		return nil, upstream(err, "subaccount", ErrAccountNotFound)
	}
	return sub, nil
}

// effectiveLeverage = notional / equity, 0 при equity <= 0
func effectiveLeverage(notional, equity decimal.Decimal) decimal.Decimal {
	if !equity.IsPositive() {
		return decimal.Zero
	}
	return notional.Div(equity)
}
