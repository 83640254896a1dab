package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Analyze рассчитывает полный набор метрик для одной позиции
//
// Источники значений:
// - текущая цена: mark price рынка, если нет - oracle price
// - цена входа: из позиции, для pre-trade анализа (позиции еще нет) - текущая цена
// - MMF: из позиции (0 допустим), затем переопределение политики, затем значение рынка, затем 0.03
// - notional считается по текущей цене
//
// Отрицательная цена ликвидации ограничивается нулем до расчета расстояния.
func (c *Calculator) Analyze(pos PositionSnapshot, market MarketSnapshot, account AccountSnapshot) (*Metrics, error) {
	if !pos.Side.Valid() {
		return nil, invalid("side", "must be LONG or SHORT")
	}

	price := market.Price()
	if !price.IsPositive() {
		return nil, invalid("mark_price", "market price is not available")
	}

	entry := pos.EntryPrice
	if entry.IsZero() {
		entry = price
	}

	mmf := pos.MaintenanceMarginFraction.Decimal
	if !pos.MaintenanceMarginFraction.Valid {
		mmf = c.policy.MaintenanceMarginFor(pos.Market, market.MaintenanceMarginFraction)
	}

	liquidation, err := c.LiquidationPrice(entry, pos.Size, pos.Leverage, pos.Side, mmf)
	if err != nil {
		return nil, err
	}
	if liquidation.IsNegative() {
		liquidation = decimal.Zero
	}

	notional := price.Mul(pos.Size)
	required, err := c.RequiredMargin(notional, pos.Leverage)
	if err != nil {
		return nil, err
	}
	maintenance := notional.Mul(mmf)

	distance, err := c.LiquidationDistance(price, liquidation)
	if err != nil {
		return nil, err
	}

	pnl, err := c.PnL(entry, price, pos.Size, pos.Side)
	if err != nil {
		return nil, err
	}
	pnlPercent, err := c.PnLPercentage(entry, price, pos.Side)
	if err != nil {
		return nil, err
	}

	usage := c.MarginUsagePercent(required, account.Equity)

	return &Metrics{
		Market:                pos.Market,
		Side:                  pos.Side,
		Leverage:              pos.Leverage,
		LiquidationPrice:      liquidation,
		DistanceToLiquidation: distance,
		PositionSize:          pos.Size,
		NotionalValue:         notional,
		RequiredMargin:        required,
		MaintenanceMargin:     maintenance,
		MarginRatio:           c.MarginRatio(account.Equity, maintenance),
		AccountEquity:         account.Equity,
		MarginUsagePercent:    usage,
		FundingRate:           market.NextFundingRate,
		FundingPayment:        c.FundingPayment(notional, market.NextFundingRate),
		DailyFundingCost:      c.DailyFundingCost(notional, market.NextFundingRate),
		UnrealizedPnL:         pnl,
		PnLPercent:            pnlPercent,
		RiskScore:             c.RiskScore(pos.Leverage, usage),
		Recommendations:       c.Recommendations(pos.Leverage, usage),
	}, nil
}

// Пороги риска субаккаунта по margin ratio
var (
	accountHighRisk      = decimal.RequireFromString("0.7")
	accountMediumRisk    = decimal.RequireFromString("0.5")
	accountMarginWarning = decimal.RequireFromString("0.6")
)

// maxMarketsBeforeWarning - больше этого числа рынков считается сильной диверсификацией
const maxMarketsBeforeWarning = 5

// AssessAccount оценивает риск всего субаккаунта
//
// Margin ratio = maintenanceMargin / equity (equity <= 0 дает 1, то есть high).
// Экспозиция по рынку = |size| * entry, позиции одного рынка суммируются.
func (c *Calculator) AssessAccount(equity, maintenanceMargin decimal.Decimal, positions []PositionSnapshot) *AccountRisk {
	ratio := c.MarginRatio(equity, maintenanceMargin)

	exposure := make(map[string]decimal.Decimal, len(positions))
	for _, p := range positions {
		key := strings.ToUpper(p.Market)
		exposure[key] = exposure[key].Add(p.Size.Abs().Mul(p.EntryPrice))
	}

	level := LiquidationRiskLow
	switch {
	case ratio.GreaterThan(accountHighRisk):
		level = LiquidationRiskHigh
	case ratio.GreaterThan(accountMediumRisk):
		level = LiquidationRiskMedium
	}

	warnings := make([]string, 0, 2)
	if ratio.GreaterThan(accountMarginWarning) {
		warnings = append(warnings, WarningHighMarginUsage)
	}
	if len(exposure) > maxMarketsBeforeWarning {
		warnings = append(warnings, WarningDiversified)
	}

	return &AccountRisk{
		TotalMarginRatio:  ratio,
		MaintenanceMargin: maintenanceMargin,
		LiquidationRisk:   level,
		ExposureByMarket:  exposure,
		Warnings:          warnings,
	}
}

// MaintenanceMargin суммирует поддерживающую маржу по позициям.
// mmfByMarket - MMF рынков из индексера, отсутствующие берутся из политики.
func (c *Calculator) MaintenanceMargin(positions []PositionSnapshot, prices, mmfByMarket map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		market := strings.ToUpper(p.Market)
		price, ok := prices[market]
		if !ok || !price.IsPositive() {
			price = p.EntryPrice
		}
		mmf := p.MaintenanceMarginFraction.Decimal
		if !p.MaintenanceMarginFraction.Valid {
			mmf = c.policy.MaintenanceMarginFor(market, mmfByMarket[market])
		}
		total = total.Add(p.Size.Abs().Mul(price).Mul(mmf))
	}
	return total
}
