// Package risk содержит калькулятор риск-метрик перпетуальных позиций.
//
// Все функции чистые: без I/O, без блокировок и без состояния между вызовами.
// Calculator безопасен для конкурентного использования.
package risk

import (
	"github.com/shopspring/decimal"
)

// Тексты рекомендаций. Порядок в выдаче фиксирован и совпадает с порядком правил.
const (
	RecommendationReduceLeverage = "Consider reducing leverage to manage risk"
	RecommendationHighMargin     = "High margin usage - consider adding funds or reducing position size"
	RecommendationHighRisk       = "High risk profile - monitor position closely"
	RecommendationAcceptable     = "Position risk is within acceptable parameters"
)

// Предупреждения по субаккаунту
const (
	WarningHighMarginUsage = "High margin usage detected"
	WarningDiversified     = "Portfolio heavily diversified"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Calculator - единый калькулятор риск-метрик
//
// Handlers и сервисы не считают формулы сами, только через Calculator.
type Calculator struct {
	policy Policy
}

// NewCalculator создает калькулятор с заданной политикой.
// Незаданные поля политики берутся из DefaultPolicy.
func NewCalculator(policy Policy) *Calculator {
	if policy.FundingIntervalsPerDay <= 0 {
		policy.FundingIntervalsPerDay = FundingIntervalsPerDay
	}
	if policy.DefaultMaintenanceMarginFraction.IsZero() {
		policy.DefaultMaintenanceMarginFraction = DefaultMaintenanceMarginFraction
	}
	if policy.MarketMaintenanceMargin == nil {
		policy.MarketMaintenanceMargin = map[string]decimal.Decimal{}
	}
	defaults := DefaultPolicy()
	if !policy.MinLeverage.IsPositive() {
		policy.MinLeverage = defaults.MinLeverage
	}
	if !policy.MaxLeverage.IsPositive() {
		policy.MaxLeverage = defaults.MaxLeverage
	}
	return &Calculator{policy: policy}
}

// Policy возвращает политику калькулятора
func (c *Calculator) Policy() Policy {
	return c.policy
}

// LiquidationPrice рассчитывает цену ликвидации
//
// Формула:
//
//	initialMargin     = entry * size / leverage
//	maintenanceMargin = entry * size * mmf
//	LONG:  entry - (initialMargin - maintenanceMargin) / size
//	SHORT: entry + (initialMargin - maintenanceMargin) / size
//
// Результат может быть отрицательным при mmf >= 1/leverage,
// ограничение для отображения делает вызывающая сторона.
func (c *Calculator) LiquidationPrice(entryPrice, size, leverage decimal.Decimal, side Side, mmf decimal.Decimal) (decimal.Decimal, error) {
	if !entryPrice.IsPositive() {
		return decimal.Zero, invalid("entry_price", "must be positive")
	}
	if !size.IsPositive() {
		return decimal.Zero, invalid("size", "must be positive")
	}
	if !leverage.IsPositive() {
		return decimal.Zero, invalid("leverage", "must be positive")
	}
	if !validFraction(mmf) {
		return decimal.Zero, invalid("maintenance_margin_fraction", "must be in [0,1)")
	}

	notional := entryPrice.Mul(size)
	initialMargin := notional.Div(leverage)
	maintenanceMargin := notional.Mul(mmf)
	offset := initialMargin.Sub(maintenanceMargin).Div(size)

	switch side {
	case SideLong:
		return entryPrice.Sub(offset), nil
	case SideShort:
		return entryPrice.Add(offset), nil
	default:
		return decimal.Zero, invalid("side", "must be LONG or SHORT")
	}
}

// PnL - нереализованный PnL в котируемом активе
func (c *Calculator) PnL(entryPrice, currentPrice, size decimal.Decimal, side Side) (decimal.Decimal, error) {
	switch side {
	case SideLong:
		return currentPrice.Sub(entryPrice).Mul(size), nil
	case SideShort:
		return entryPrice.Sub(currentPrice).Mul(size), nil
	default:
		return decimal.Zero, invalid("side", "must be LONG or SHORT")
	}
}

// PnLPercentage - изменение цены относительно входа в процентах с учетом направления
func (c *Calculator) PnLPercentage(entryPrice, currentPrice decimal.Decimal, side Side) (decimal.Decimal, error) {
	if entryPrice.IsZero() {
		return decimal.Zero, invalid("entry_price", "must not be zero")
	}
	switch side {
	case SideLong:
		return currentPrice.Sub(entryPrice).Div(entryPrice).Mul(hundred), nil
	case SideShort:
		return entryPrice.Sub(currentPrice).Div(entryPrice).Mul(hundred), nil
	default:
		return decimal.Zero, invalid("side", "must be LONG or SHORT")
	}
}

// RequiredMargin - начальная маржа для notional при заданном плече
func (c *Calculator) RequiredMargin(notionalValue, leverage decimal.Decimal) (decimal.Decimal, error) {
	if !leverage.IsPositive() {
		return decimal.Zero, invalid("leverage", "must be positive")
	}
	return notionalValue.Div(leverage), nil
}

// MarginRatio - доля equity, занятая маржой
//
// equity <= 0 это не ошибка: возвращается 1 (полностью под риском).
func (c *Calculator) MarginRatio(equity, maintenanceMargin decimal.Decimal) decimal.Decimal {
	if !equity.IsPositive() {
		return one
	}
	return maintenanceMargin.Div(equity)
}

// MarginUsagePercent - загрузка маржи в процентах.
// Наследует политику MarginRatio: equity <= 0 дает 100.
func (c *Calculator) MarginUsagePercent(requiredMargin, equity decimal.Decimal) decimal.Decimal {
	return c.MarginRatio(equity, requiredMargin).Mul(hundred)
}

// FundingPayment - платеж за один funding-интервал.
// Положительное значение означает, что LONG платит.
func (c *Calculator) FundingPayment(notionalValue, fundingRate decimal.Decimal) decimal.Decimal {
	return notionalValue.Mul(fundingRate)
}

// DailyFundingCost - funding за сутки (FundingPayment * интервалы в сутках)
func (c *Calculator) DailyFundingCost(notionalValue, fundingRate decimal.Decimal) decimal.Decimal {
	return c.FundingPayment(notionalValue, fundingRate).Mul(decimal.NewFromInt(int64(c.policy.FundingIntervalsPerDay)))
}

// LiquidationDistance - расстояние до цены ликвидации в процентах от текущей цены
func (c *Calculator) LiquidationDistance(currentPrice, liquidationPrice decimal.Decimal) (decimal.Decimal, error) {
	if !currentPrice.IsPositive() {
		return decimal.Zero, invalid("current_price", "must be positive")
	}
	return liquidationPrice.Sub(currentPrice).Abs().Div(currentPrice).Mul(hundred), nil
}

// Пороги полос риска. Нижние границы исключающие: ровно 15 попадает в полосу ниже.
var (
	leverageBands = []band{
		{threshold: decimal.NewFromInt(15), points: 40},
		{threshold: decimal.NewFromInt(10), points: 30},
		{threshold: decimal.NewFromInt(5), points: 20},
	}
	marginUsageBands = []band{
		{threshold: decimal.NewFromInt(80), points: 40},
		{threshold: decimal.NewFromInt(60), points: 30},
		{threshold: decimal.NewFromInt(40), points: 20},
	}
)

const (
	basePoints   = 10
	maxRiskScore = 100
)

type band struct {
	threshold decimal.Decimal
	points    int
}

func bandPoints(value decimal.Decimal, bands []band) int {
	for _, b := range bands {
		if value.GreaterThan(b.threshold) {
			return b.points
		}
	}
	return basePoints
}

// RiskScore - ступенчатая оценка риска в диапазоне [0,100]
//
// Сумма двух независимых полос: по плечу (>15→40, >10→30, >5→20, иначе 10)
// и по загрузке маржи (>80→40, >60→30, >40→20, иначе 10).
func (c *Calculator) RiskScore(leverage, marginUsagePercent decimal.Decimal) int {
	score := bandPoints(leverage, leverageBands) + bandPoints(marginUsagePercent, marginUsageBands)
	if score > maxRiskScore {
		score = maxRiskScore
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Recommendations возвращает рекомендации в фиксированном порядке.
// Если ни одно правило не сработало - единственная рекомендация RecommendationAcceptable.
func (c *Calculator) Recommendations(leverage, marginUsagePercent decimal.Decimal) []string {
	recs := make([]string, 0, 3)

	if leverage.GreaterThan(decimal.NewFromInt(10)) {
		recs = append(recs, RecommendationReduceLeverage)
	}
	if marginUsagePercent.GreaterThan(decimal.NewFromInt(70)) {
		recs = append(recs, RecommendationHighMargin)
	}
	if leverage.GreaterThan(decimal.NewFromInt(5)) && marginUsagePercent.GreaterThan(decimal.NewFromInt(50)) {
		recs = append(recs, RecommendationHighRisk)
	}

	if len(recs) == 0 {
		recs = append(recs, RecommendationAcceptable)
	}
	return recs
}
