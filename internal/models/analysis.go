package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskAnalysis представляет запись журнала анализов в таблице risk_analyses
type RiskAnalysis struct {
	ID                 int64           `json:"id" db:"id"`
	WalletAddress      string          `json:"wallet_address" db:"wallet_address"`
	Market             string          `json:"market" db:"market"`
	Side               string          `json:"side" db:"side"`
	Size               decimal.Decimal `json:"size" db:"size"`
	EntryPrice         decimal.Decimal `json:"entry_price" db:"entry_price"`
	Leverage           decimal.Decimal `json:"leverage" db:"leverage"`
	LiquidationPrice   decimal.Decimal `json:"liquidation_price" db:"liquidation_price"`
	MarginUsagePercent decimal.Decimal `json:"margin_usage_percent" db:"margin_usage_percent"`
	RiskScore          int             `json:"risk_score" db:"risk_score"`
	Recommendations    []string        `json:"recommendations" db:"recommendations"` // text[]
	Source             string          `json:"source" db:"source"`                   // analyze, calculate
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// Источники записи
const (
	AnalysisSourceAnalyze   = "analyze"
	AnalysisSourceCalculate = "calculate"
)

// AnalysisStats представляет агрегат журнала анализов кошелька за период
type AnalysisStats struct {
	WalletAddress    string        `json:"wallet_address"`
	Period           string        `json:"period"` // day, week, month, all
	TotalAnalyses    int           `json:"total_analyses"`
	AverageRiskScore float64       `json:"average_risk_score"`
	MaxRiskScore     int           `json:"max_risk_score"`
	ByMarket         []MarketCount `json:"by_market"` // по убыванию количества
	LastAnalysisAt   *time.Time    `json:"last_analysis_at,omitempty"`
}

// MarketCount - количество анализов по рынку
type MarketCount struct {
	Market string `json:"market"`
	Count  int    `json:"count"`
}
