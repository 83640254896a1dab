package indexer

import (
	"github.com/shopspring/decimal"
)

// Все числовые поля индексер отдает строками, decimal.Decimal
// разбирает их без потери точности.

// PerpetualMarket - рынок из /perpetualMarkets
type PerpetualMarket struct {
	Ticker                    string          `json:"ticker"`
	Status                    string          `json:"status"` // ACTIVE, PAUSED, CANCEL_ONLY, POST_ONLY, FINAL_SETTLEMENT
	OraclePrice               decimal.Decimal `json:"oraclePrice"`
	PriceChange24H            decimal.Decimal `json:"priceChange24H"`
	Volume24H                 decimal.Decimal `json:"volume24H"`
	Trades24H                 int64           `json:"trades24H"`
	NextFundingRate           decimal.Decimal `json:"nextFundingRate"`
	InitialMarginFraction     decimal.Decimal `json:"initialMarginFraction"`
	MaintenanceMarginFraction decimal.Decimal `json:"maintenanceMarginFraction"`
	OpenInterest              decimal.Decimal `json:"openInterest"`
	TickSize                  decimal.Decimal `json:"tickSize"`
	StepSize                  decimal.Decimal `json:"stepSize"`
	AtomicResolution          int32           `json:"atomicResolution"`
	MarketType                string          `json:"marketType"`
}

// IsActive - рынок принимает ордера
func (m PerpetualMarket) IsActive() bool {
	return m.Status == MarketStatusActive
}

// MaxLeverage = 1 / initialMarginFraction, 0 если IMF неизвестна
func (m PerpetualMarket) MaxLeverage() decimal.Decimal {
	if !m.InitialMarginFraction.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(m.InitialMarginFraction).Floor()
}

const MarketStatusActive = "ACTIVE"

type perpetualMarketsResponse struct {
	Markets map[string]PerpetualMarket `json:"markets"`
}

// OrderbookLevel - уровень стакана
type OrderbookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Orderbook - стакан рынка
type Orderbook struct {
	Bids []OrderbookLevel `json:"bids"`
	Asks []OrderbookLevel `json:"asks"`
}

// Candle - свеча
type Candle struct {
	StartedAt            string          `json:"startedAt"`
	Ticker               string          `json:"ticker"`
	Resolution           string          `json:"resolution"`
	Low                  decimal.Decimal `json:"low"`
	High                 decimal.Decimal `json:"high"`
	Open                 decimal.Decimal `json:"open"`
	Close                decimal.Decimal `json:"close"`
	BaseTokenVolume      decimal.Decimal `json:"baseTokenVolume"`
	USDVolume            decimal.Decimal `json:"usdVolume"`
	Trades               int64           `json:"trades"`
	StartingOpenInterest decimal.Decimal `json:"startingOpenInterest"`
}

// Разрешения свечей индексера
const (
	Resolution1Min   = "1MIN"
	Resolution1Hour  = "1HOUR"
	Resolution4Hours = "4HOURS"
	Resolution1Day   = "1DAY"
)

type candlesResponse struct {
	Candles []Candle `json:"candles"`
}

// Trade - публичная сделка рынка
type Trade struct {
	ID        string          `json:"id"`
	Side      string          `json:"side"` // BUY, SELL
	Size      decimal.Decimal `json:"size"`
	Price     decimal.Decimal `json:"price"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"createdAt"`
}

type tradesResponse struct {
	Trades []Trade `json:"trades"`
}

// HistoricalFunding - начисленный funding за интервал
type HistoricalFunding struct {
	Ticker      string          `json:"ticker"`
	Rate        decimal.Decimal `json:"rate"`
	Price       decimal.Decimal `json:"price"`
	EffectiveAt string          `json:"effectiveAt"`
}

type historicalFundingResponse struct {
	HistoricalFunding []HistoricalFunding `json:"historicalFunding"`
}

// PerpetualPosition - позиция субаккаунта
type PerpetualPosition struct {
	Market        string          `json:"market"`
	Status        string          `json:"status"` // OPEN, CLOSED, LIQUIDATED
	Side          string          `json:"side"`   // LONG, SHORT
	Size          decimal.Decimal `json:"size"`   // для SHORT отрицательный
	MaxSize       decimal.Decimal `json:"maxSize"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	ExitPrice     decimal.Decimal `json:"exitPrice"`
	RealizedPnl   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	NetFunding    decimal.Decimal `json:"netFunding"`
	CreatedAt     string          `json:"createdAt"`
	ClosedAt      string          `json:"closedAt"`
}

const PositionStatusOpen = "OPEN"

type perpetualPositionsResponse struct {
	Positions []PerpetualPosition `json:"positions"`
}

// Subaccount - субаккаунт с открытыми позициями
type Subaccount struct {
	Address                string                       `json:"address"`
	SubaccountNumber       int                          `json:"subaccountNumber"`
	Equity                 decimal.Decimal              `json:"equity"`
	FreeCollateral         decimal.Decimal              `json:"freeCollateral"`
	OpenPerpetualPositions map[string]PerpetualPosition `json:"openPerpetualPositions"`
	MarginEnabled          bool                         `json:"marginEnabled"`
}

type subaccountResponse struct {
	Subaccount Subaccount `json:"subaccount"`
}

// Fill - исполнение ордера субаккаунта
type Fill struct {
	ID         string          `json:"id"`
	Side       string          `json:"side"`
	Liquidity  string          `json:"liquidity"` // TAKER, MAKER
	Type       string          `json:"type"`
	Market     string          `json:"market"`
	MarketType string          `json:"marketType"`
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Fee        decimal.Decimal `json:"fee"`
	CreatedAt  string          `json:"createdAt"`
	OrderID    string          `json:"orderId"`
}

type fillsResponse struct {
	Fills []Fill `json:"fills"`
}

// TransferAccount - сторона перевода
type TransferAccount struct {
	Address          string `json:"address"`
	SubaccountNumber *int   `json:"subaccountNumber,omitempty"`
}

// Transfer - депозит, вывод или перевод между субаккаунтами
type Transfer struct {
	ID              string          `json:"id"`
	Sender          TransferAccount `json:"sender"`
	Recipient       TransferAccount `json:"recipient"`
	Size            decimal.Decimal `json:"size"`
	CreatedAt       string          `json:"createdAt"`
	CreatedAtHeight string          `json:"createdAtHeight"`
	Symbol          string          `json:"symbol"`
	Type            string          `json:"type"` // DEPOSIT, WITHDRAWAL, TRANSFER_IN, TRANSFER_OUT
	TransactionHash string          `json:"transactionHash"`
}

type transfersResponse struct {
	Transfers []Transfer `json:"transfers"`
}

// Height - последний обработанный блок, используется как проверка доступности
type Height struct {
	Height string `json:"height"`
	Time   string `json:"time"`
}

// errorResponse - тело ошибки индексера
type errorResponse struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}
