package ledger

import "github.com/shopspring/decimal"

// LateFeePolicy computes penalties on overdue balances.
//
// fee = balance * DailyRate * (daysOverdue - GraceDays), capped at
// balance * MaxRatio and, when Cap is positive, at Cap.
type LateFeePolicy struct {
	DailyRate decimal.Decimal
	GraceDays int
	MaxRatio  decimal.Decimal
	Cap       decimal.Decimal
}

// DefaultLateFeePolicy is 0.1% per day, capped at 25% of balance or 1000.00
func DefaultLateFeePolicy() LateFeePolicy {
	return LateFeePolicy{
		DailyRate: decimal.RequireFromString("0.001"),
		GraceDays: 0,
		MaxRatio:  decimal.RequireFromString("0.25"),
		Cap:       decimal.NewFromInt(1000),
	}
}

// Compute returns the fee for balance outstanding daysOverdue days
func (p LateFeePolicy) Compute(balance decimal.Decimal, daysOverdue int) decimal.Decimal {
	chargeable := daysOverdue - p.GraceDays
	if chargeable <= 0 || !balance.IsPositive() {
		return decimal.Zero
	}

	fee := balance.Mul(p.DailyRate).Mul(decimal.NewFromInt(int64(chargeable)))
	if p.MaxRatio.IsPositive() {
		fee = decimal.Min(fee, balance.Mul(p.MaxRatio))
	}
	if p.Cap.IsPositive() {
		fee = decimal.Min(fee, p.Cap)
	}
	return fee.Round(2)
}
