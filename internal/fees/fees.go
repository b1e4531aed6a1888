// Package fees computes provider and platform fees. All functions are
// pure; amounts are integer minor currency units.
package fees

import (
	"event-settlement/internal/status"

	"github.com/shopspring/decimal"
)

// Calculator holds the configured rates. Rates are fractions
// (0.036 = 3.6%), fixed fees are minor units. A zero Min/Max bound
// means "no bound".
type Calculator struct {
	ProviderRate  decimal.Decimal
	ProviderFixed int64

	PlatformRate  decimal.Decimal
	PlatformFixed int64
	PlatformMin   int64
	PlatformMax   int64
}

// NewCalculator parses the rate strings from config. Invalid rates are
// a deployment bug, not a runtime condition.
func NewCalculator(providerRate string, providerFixed int64, platformRate string, platformFixed, platformMin, platformMax int64) (*Calculator, error) {
	pr, err := decimal.NewFromString(providerRate)
	if err != nil {
		return nil, status.Wrap(status.CodeCalculation, "invalid provider fee rate", err)
	}
	fr, err := decimal.NewFromString(platformRate)
	if err != nil {
		return nil, status.Wrap(status.CodeCalculation, "invalid platform fee rate", err)
	}
	if pr.IsNegative() || fr.IsNegative() || providerFixed < 0 || platformFixed < 0 || platformMin < 0 || platformMax < 0 {
		return nil, status.Errorf(status.CodeCalculation, "fee configuration must not be negative")
	}
	return &Calculator{
		ProviderRate:  pr,
		ProviderFixed: providerFixed,
		PlatformRate:  fr,
		PlatformFixed: platformFixed,
		PlatformMin:   platformMin,
		PlatformMax:   platformMax,
	}, nil
}

// ProviderFee returns round-half-up(amount*rate) + fixed for a single
// transaction. It is never applied to aggregates: rounding has to match
// what the provider charged per transaction.
func (c *Calculator) ProviderFee(amount int64) (int64, error) {
	if amount < 0 {
		return 0, status.Errorf(status.CodeCalculation, "negative amount %d", amount)
	}
	fee := decimal.NewFromInt(amount).Mul(c.ProviderRate).Round(0)
	return fee.IntPart() + c.ProviderFixed, nil
}

// PlatformFee returns round-half-up(totalSales*rate) + count*fixed,
// clamped to the configured [min, max] bounds.
func (c *Calculator) PlatformFee(totalSales, transactionCount int64) (int64, error) {
	if totalSales < 0 {
		return 0, status.Errorf(status.CodeCalculation, "negative total sales %d", totalSales)
	}
	if transactionCount < 0 {
		return 0, status.Errorf(status.CodeCalculation, "negative transaction count %d", transactionCount)
	}
	fee := decimal.NewFromInt(totalSales).Mul(c.PlatformRate).Round(0).IntPart()
	fee += transactionCount * c.PlatformFixed
	if c.PlatformMin > 0 && fee < c.PlatformMin {
		fee = c.PlatformMin
	}
	if c.PlatformMax > 0 && fee > c.PlatformMax {
		fee = c.PlatformMax
	}
	return fee, nil
}
