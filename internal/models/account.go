package models

import "github.com/shopspring/decimal"

// Balance представляет баланс субаккаунта
type Balance struct {
	WalletAddress    string          `json:"wallet_address"`
	TotalBalance     decimal.Decimal `json:"total_balance"`     // equity
	AvailableBalance decimal.Decimal `json:"available_balance"` // free collateral
	MarginUsed       decimal.Decimal `json:"margin_used"`       // equity - free collateral
	Currency         string          `json:"currency"`
}

// Position представляет открытую позицию с рассчитанными метриками риска
type Position struct {
	PositionID       string          `json:"position_id"` // {market}-{side}
	Market           string          `json:"market"`
	Side             string          `json:"side"` // LONG, SHORT
	Size             decimal.Decimal `json:"size"` // абсолютное значение
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	Leverage         decimal.Decimal `json:"leverage"` // notional / equity
	MarginMode       string          `json:"margin_mode"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	PnLPercent       decimal.Decimal `json:"pnl_percent"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	MarginRatio      decimal.Decimal `json:"margin_ratio"`
	OpenedAt         string          `json:"opened_at"`
}

// Режимы маржи. dYdX v4 использует кросс-маржу для субаккаунта 0,
// isolated принимается калькулятором для расчета "что если".
const (
	MarginModeCross    = "cross"
	MarginModeIsolated = "isolated"
)

// PositionID строит идентификатор позиции
func PositionID(market, side string) string {
	return market + "-" + side
}

// Trade представляет исполнение из истории сделок
type Trade struct {
	TradeID     string          `json:"trade_id"`
	Market      string          `json:"market"`
	Side        string          `json:"side"` // BUY, SELL
	Size        decimal.Decimal `json:"size"`
	Price       decimal.Decimal `json:"price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Fee         decimal.Decimal `json:"fee"`
	Liquidity   string          `json:"liquidity,omitempty"` // TAKER, MAKER
	Timestamp   string          `json:"timestamp"`
}

// Transaction представляет депозит или вывод
type Transaction struct {
	TxHash    string          `json:"tx_hash"`
	Type      string          `json:"type"` // deposit, withdrawal, transfer_in, transfer_out
	Amount    decimal.Decimal `json:"amount"`
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"` // confirmed, pending
	Timestamp string          `json:"timestamp"`
}

// Типы и статусы транзакций
const (
	TransactionDeposit     = "deposit"
	TransactionWithdrawal  = "withdrawal"
	TransactionTransferIn  = "transfer_in"
	TransactionTransferOut = "transfer_out"

	TransactionConfirmed = "confirmed"
	TransactionPending   = "pending"
)

// AccountRisk представляет сводку рисков субаккаунта
type AccountRisk struct {
	WalletAddress     string                     `json:"wallet_address"`
	TotalMarginRatio  decimal.Decimal            `json:"total_margin_ratio"`
	MaintenanceMargin decimal.Decimal            `json:"maintenance_margin"`
	AccountEquity     decimal.Decimal            `json:"account_equity"`
	LiquidationRisk   string                     `json:"liquidation_risk"` // low, medium, high
	ExposureByMarket  map[string]decimal.Decimal `json:"exposure_by_market"`
	Warnings          []string                   `json:"warnings"`
}
