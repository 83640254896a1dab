package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side - направление позиции
type Side string

const (
	SideLong  Side = "LONG"  // длинная позиция, ликвидация при падении цены
	SideShort Side = "SHORT" // короткая позиция, ликвидация при росте цены
)

// ParseSide разбирает направление позиции без учета регистра.
// Принимает также синонимы buy/sell, которые приходят из fills индексера.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return SideLong, nil
	case "SHORT", "SELL":
		return SideShort, nil
	default:
		return "", invalid("side", "must be LONG or SHORT")
	}
}

// Valid проверяет, что направление известно
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// PositionSnapshot - входные данные позиции
//
// Value object: создается на время одного запроса и не хранится.
// MaintenanceMarginFraction без Valid означает "неизвестно", калькулятор
// подставляет значение из Policy. Явный 0 используется как есть.
type PositionSnapshot struct {
	Market                    string
	Side                      Side
	Size                      decimal.Decimal // в базовом активе
	EntryPrice                decimal.Decimal // в котируемом активе за единицу
	Leverage                  decimal.Decimal
	MaintenanceMarginFraction decimal.NullDecimal
}

// MarketSnapshot - рыночные данные по одному перпетуалу
type MarketSnapshot struct {
	Market                    string
	MarkPrice                 decimal.Decimal
	OraclePrice               decimal.Decimal
	NextFundingRate           decimal.Decimal // доля за один funding-интервал, со знаком
	MaintenanceMarginFraction decimal.Decimal
}

// Price возвращает mark price, а если он не задан - oracle price
func (m MarketSnapshot) Price() decimal.Decimal {
	if m.MarkPrice.IsPositive() {
		return m.MarkPrice
	}
	return m.OraclePrice
}

// AccountSnapshot - данные субаккаунта
type AccountSnapshot struct {
	Equity decimal.Decimal
}

// Metrics - производные риск-метрики одной позиции
//
// Пересчитываются на каждый вызов, идентичности и жизненного цикла нет.
type Metrics struct {
	Market                string
	Side                  Side
	Leverage              decimal.Decimal
	LiquidationPrice      decimal.Decimal
	DistanceToLiquidation decimal.Decimal // в процентах от текущей цены
	PositionSize          decimal.Decimal
	NotionalValue         decimal.Decimal
	RequiredMargin        decimal.Decimal
	MaintenanceMargin     decimal.Decimal
	MarginRatio           decimal.Decimal
	AccountEquity         decimal.Decimal
	MarginUsagePercent    decimal.Decimal
	FundingRate           decimal.Decimal
	FundingPayment        decimal.Decimal // за один интервал
	DailyFundingCost      decimal.Decimal
	UnrealizedPnL         decimal.Decimal
	PnLPercent            decimal.Decimal
	RiskScore             int
	Recommendations       []string
}

// LiquidationRisk - уровень риска ликвидации всего субаккаунта
type LiquidationRisk string

const (
	LiquidationRiskLow    LiquidationRisk = "low"
	LiquidationRiskMedium LiquidationRisk = "medium"
	LiquidationRiskHigh   LiquidationRisk = "high"
)

// AccountRisk - сводка рисков по субаккаунту
type AccountRisk struct {
	TotalMarginRatio  decimal.Decimal
	MaintenanceMargin decimal.Decimal
	LiquidationRisk   LiquidationRisk
	ExposureByMarket  map[string]decimal.Decimal
	Warnings          []string
}
