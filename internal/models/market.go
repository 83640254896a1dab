package models

import "github.com/shopspring/decimal"

// Все денежные и количественные поля сериализуются как строки decimal,
// так же как их отдает индексер dYdX.

// MarketInfo представляет перпетуальный рынок в списке /api/markets/list
type MarketInfo struct {
	Market       string          `json:"market"`         // BTC-USD
	BaseAsset    string          `json:"base_asset"`     // BTC
	QuoteAsset   string          `json:"quote_asset"`    // USDC
	MinOrderSize decimal.Decimal `json:"min_order_size"` // минимальный ордер = step size
	MaxLeverage  decimal.Decimal `json:"max_leverage"`   // floor(1 / initial margin fraction)
	TickSize     decimal.Decimal `json:"tick_size"`
	StepSize     decimal.Decimal `json:"step_size"`
	Status       string          `json:"status"` // active, suspended
}

// Статусы рынка
const (
	MarketStatusActive    = "active"
	MarketStatusSuspended = "suspended"
)

// QuoteAsset - расчетный актив всех рынков dYdX v4
const QuoteAsset = "USDC"

// MarketData представляет текущее состояние рынка и статистику за 24 часа
type MarketData struct {
	Market          string          `json:"market"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	IndexPrice      decimal.Decimal `json:"index_price"`
	FundingRate     decimal.Decimal `json:"funding_rate"`
	NextFundingTime string          `json:"next_funding_time,omitempty"`
	OpenInterest    decimal.Decimal `json:"open_interest"`
	Volume24h       decimal.Decimal `json:"volume_24h"`
	PriceChange24h  decimal.Decimal `json:"price_change_24h"` // в процентах
	High24h         decimal.Decimal `json:"high_24h"`
	Low24h          decimal.Decimal `json:"low_24h"`
	LastTradePrice  decimal.Decimal `json:"last_trade_price"`
}

// OrderbookLevel - уровень стакана
type OrderbookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook - стакан рынка
type Orderbook struct {
	Market string           `json:"market"`
	Bids   []OrderbookLevel `json:"bids"`
	Asks   []OrderbookLevel `json:"asks"`
}

// FundingEntry - начисление funding за один интервал
type FundingEntry struct {
	Market      string          `json:"market"`
	Rate        decimal.Decimal `json:"rate"`
	Price       decimal.Decimal `json:"price"`
	EffectiveAt string          `json:"effective_at"`
}
