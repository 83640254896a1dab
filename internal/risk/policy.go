package risk

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FundingIntervalsPerDay - количество funding-интервалов в сутках.
// dYdX v4 начисляет funding каждые 8 часов, отсюда 3.
const FundingIntervalsPerDay = 3

// DefaultMaintenanceMarginFraction используется, когда рынок не сообщил MMF
var DefaultMaintenanceMarginFraction = decimal.RequireFromString("0.03")

// Policy - параметры доменной политики калькулятора
type Policy struct {
	// FundingIntervalsPerDay - множитель для дневной стоимости funding
	FundingIntervalsPerDay int

	// DefaultMaintenanceMarginFraction - MMF по умолчанию
	DefaultMaintenanceMarginFraction decimal.Decimal

	// Допустимый диапазон плеча для пользовательских запросов
	MinLeverage decimal.Decimal
	MaxLeverage decimal.Decimal

	// MarketMaintenanceMargin - переопределение MMF по рынкам (BTC-USD → 0.03)
	MarketMaintenanceMargin map[string]decimal.Decimal
}

// DefaultPolicy возвращает политику по умолчанию
func DefaultPolicy() Policy {
	return Policy{
		FundingIntervalsPerDay:           FundingIntervalsPerDay,
		DefaultMaintenanceMarginFraction: DefaultMaintenanceMarginFraction,
		MinLeverage:                      decimal.NewFromInt(1),
		MaxLeverage:                      decimal.NewFromInt(20),
		MarketMaintenanceMargin:          map[string]decimal.Decimal{},
	}
}

// MaintenanceMarginFor возвращает MMF для рынка: переопределение из политики,
// затем значение рынка, затем значение по умолчанию.
func (p Policy) MaintenanceMarginFor(market string, reported decimal.Decimal) decimal.Decimal {
	if mmf, ok := p.MarketMaintenanceMargin[strings.ToUpper(market)]; ok {
		return mmf
	}
	if reported.IsPositive() {
		return reported
	}
	return p.DefaultMaintenanceMarginFraction
}

// CheckLeverage проверяет плечо на попадание в диапазон политики
func (p Policy) CheckLeverage(leverage decimal.Decimal) error {
	if leverage.LessThan(p.MinLeverage) || leverage.GreaterThan(p.MaxLeverage) {
		return invalid("leverage", fmt.Sprintf("must be between %s and %s", p.MinLeverage, p.MaxLeverage))
	}
	return nil
}

// Validate проверяет согласованность политики
func (p Policy) Validate() error {
	if p.FundingIntervalsPerDay <= 0 {
		return fmt.Errorf("funding_intervals_per_day must be positive, got %d", p.FundingIntervalsPerDay)
	}
	if !validFraction(p.DefaultMaintenanceMarginFraction) {
		return fmt.Errorf("default_maintenance_margin_fraction must be in [0,1), got %s", p.DefaultMaintenanceMarginFraction)
	}
	if !p.MinLeverage.IsPositive() || p.MaxLeverage.LessThan(p.MinLeverage) {
		return fmt.Errorf("leverage range [%s, %s] is invalid", p.MinLeverage, p.MaxLeverage)
	}
	for market, mmf := range p.MarketMaintenanceMargin {
		if !validFraction(mmf) {
			return fmt.Errorf("maintenance margin for %s must be in [0,1), got %s", market, mmf)
		}
	}
	return nil
}

// policyFile - формат YAML файла политики
type policyFile struct {
	FundingIntervalsPerDay           int               `yaml:"funding_intervals_per_day"`
	DefaultMaintenanceMarginFraction string            `yaml:"default_maintenance_margin_fraction"`
	MinLeverage                      string            `yaml:"min_leverage"`
	MaxLeverage                      string            `yaml:"max_leverage"`
	Markets                          map[string]string `yaml:"maintenance_margin_by_market"`
}

// LoadPolicy читает политику из YAML файла.
// Отсутствующие поля берутся из DefaultPolicy. Пустой path - политика по умолчанию.
//
// Пример файла:
//
//	funding_intervals_per_day: 3
//	default_maintenance_margin_fraction: "0.03"
//	max_leverage: "20"
//	maintenance_margin_by_market:
//	  BTC-USD: "0.03"
//	  PEPE-USD: "0.1"
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read risk policy: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policy, fmt.Errorf("failed to parse risk policy: %w", err)
	}

	if file.FundingIntervalsPerDay != 0 {
		policy.FundingIntervalsPerDay = file.FundingIntervalsPerDay
	}

	fields := []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"default_maintenance_margin_fraction", file.DefaultMaintenanceMarginFraction, &policy.DefaultMaintenanceMarginFraction},
		{"min_leverage", file.MinLeverage, &policy.MinLeverage},
		{"max_leverage", file.MaxLeverage, &policy.MaxLeverage},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return policy, fmt.Errorf("risk policy %s: %w", f.name, err)
		}
		*f.value = d
	}

	for market, raw := range file.Markets {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return policy, fmt.Errorf("risk policy market %s: %w", market, err)
		}
		policy.MarketMaintenanceMargin[strings.ToUpper(market)] = d
	}

	if err := policy.Validate(); err != nil {
		return policy, err
	}

	return policy, nil
}

func validFraction(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThan(decimal.NewFromInt(1))
}
