package models

import (
	"github.com/shopspring/decimal"

	"github.com/temitopeohassan/perpraid/internal/risk"
)

// Числовые поля запросов принимаются и строками, и числами JSON.
// decimal.NullDecimal отличает отсутствующее поле (Valid = false) от нуля.

// LiquidationPriceRequest - тело POST /api/risk/liquidation-price
type LiquidationPriceRequest struct {
	Market                    string              `json:"market"`
	Side                      string              `json:"side"`
	Size                      decimal.NullDecimal `json:"size"`
	EntryPrice                decimal.NullDecimal `json:"entry_price"`
	Leverage                  decimal.NullDecimal `json:"leverage"`
	MaintenanceMarginFraction decimal.NullDecimal `json:"maintenance_margin_fraction"`
	MarginMode                string              `json:"margin_mode,omitempty"` // по умолчанию cross
}

// LiquidationPriceResponse - результат расчета цены ликвидации
type LiquidationPriceResponse struct {
	Market                    string          `json:"market"`
	Side                      string          `json:"side"`
	LiquidationPrice          decimal.Decimal `json:"liquidation_price"`
	EntryPrice                decimal.Decimal `json:"entry_price"`
	Leverage                  decimal.Decimal `json:"leverage"`
	MarginMode                string          `json:"margin_mode"`
	MaintenanceMarginFraction decimal.Decimal `json:"maintenance_margin_fraction"`
	DistanceToLiquidation     decimal.Decimal `json:"distance_to_liquidation"` // % от цены входа
}

// AnalyzeRequest - тело POST /api/risk/analyze
//
// Позиция берется по position_id из открытых позиций кошелька,
// явно переданные market/side/size/leverage имеют приоритет.
type AnalyzeRequest struct {
	PositionID string              `json:"position_id,omitempty"`
	Market     string              `json:"market,omitempty"`
	Side       string              `json:"side,omitempty"`
	Size       decimal.NullDecimal `json:"size"`
	Leverage   decimal.NullDecimal `json:"leverage"`
	MarginMode string              `json:"margin_mode,omitempty"`
}

// CalculateRequest - тело POST /api/risk/calculate, все данные переданы клиентом
type CalculateRequest struct {
	Market                    string              `json:"market"`
	Side                      string              `json:"side"`
	Size                      decimal.NullDecimal `json:"size"`
	EntryPrice                decimal.NullDecimal `json:"entry_price"`
	Leverage                  decimal.NullDecimal `json:"leverage"`
	MaintenanceMarginFraction decimal.NullDecimal `json:"maintenance_margin_fraction"`
	MarkPrice                 decimal.NullDecimal `json:"mark_price"`
	FundingRate               decimal.NullDecimal `json:"funding_rate"`
	AccountEquity             decimal.NullDecimal `json:"account_equity"`
	MarginMode                string              `json:"margin_mode,omitempty"`
}

// RiskMetrics - плоский ответ анализа риска позиции
type RiskMetrics struct {
	Market                string          `json:"market"`
	Side                  string          `json:"side"`
	Leverage              decimal.Decimal `json:"leverage"`
	MarginMode            string          `json:"margin_mode"`
	LiquidationPrice      decimal.Decimal `json:"liquidation_price"`
	DistanceToLiquidation decimal.Decimal `json:"distance_to_liquidation"`
	PositionSize          decimal.Decimal `json:"position_size"`
	NotionalValue         decimal.Decimal `json:"notional_value"`
	RequiredMargin        decimal.Decimal `json:"required_margin"`
	MaintenanceMargin     decimal.Decimal `json:"maintenance_margin"`
	MarginRatio           decimal.Decimal `json:"margin_ratio"`
	AccountEquity         decimal.Decimal `json:"account_equity"`
	MarginUsagePercent    decimal.Decimal `json:"margin_usage_percent"`
	FundingRate           decimal.Decimal `json:"funding_rate"`
	DailyFundingCost      decimal.Decimal `json:"daily_funding_cost"`
	UnrealizedPnL         decimal.Decimal `json:"unrealized_pnl"`
	PnLPercent            decimal.Decimal `json:"pnl_percent"`
	RiskScore             int             `json:"risk_score"`
	Recommendations       []string        `json:"recommendations"`
}

// NewRiskMetrics переводит метрики калькулятора в ответ API.
// Отрицательная цена ликвидации показывается как 0.
func NewRiskMetrics(m *risk.Metrics, marginMode string) *RiskMetrics {
	if marginMode == "" {
		marginMode = MarginModeCross
	}
	return &RiskMetrics{
		Market:                m.Market,
		Side:                  string(m.Side),
		Leverage:              m.Leverage,
		MarginMode:            marginMode,
		LiquidationPrice:      ClampPrice(m.LiquidationPrice),
		DistanceToLiquidation: m.DistanceToLiquidation,
		PositionSize:          m.PositionSize,
		NotionalValue:         m.NotionalValue,
		RequiredMargin:        m.RequiredMargin,
		MaintenanceMargin:     m.MaintenanceMargin,
		MarginRatio:           m.MarginRatio,
		AccountEquity:         m.AccountEquity,
		MarginUsagePercent:    m.MarginUsagePercent,
		FundingRate:           m.FundingRate,
		DailyFundingCost:      m.DailyFundingCost,
		UnrealizedPnL:         m.UnrealizedPnL,
		PnLPercent:            m.PnLPercent,
		RiskScore:             m.RiskScore,
		Recommendations:       m.Recommendations,
	}
}

// ClampPrice приводит отрицательную цену к нулю для отображения
func ClampPrice(price decimal.Decimal) decimal.Decimal {
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
