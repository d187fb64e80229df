package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPayment_MatchesFormula(t *testing.T) {
	p, rate, n := 5000.0, 32.0, 12
	r := rate / 100 / 12
	want := p * r / (1 - math.Pow(1+r, -float64(n)))

	got := MonthlyPayment(decimal.NewFromFloat(p), decimal.NewFromFloat(rate), n)

	assert.InDelta(t, want, got.InexactFloat64(), 0.01)
}

func TestBuildSchedule_Amortizing(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	principal := decimal.NewFromInt(5000)
	rate := decimal.NewFromInt(32)

	rows, err := BuildSchedule(Terms{Principal: principal, AnnualRate: rate, TermMonths: 12, Start: start})
	require.NoError(t, err)
	require.Len(t, rows, 12)

	payment := MonthlyPayment(principal, rate, 12)
	sumTotal, sumPrincipal := decimal.Zero, decimal.Zero
	for i, row := range rows {
		assert.Equal(t, i+1, row.Number)
		assert.Equal(t, start.AddDate(0, i+1, 0), row.DueDate)
		assert.True(t, row.Total.Equal(row.Principal.Add(row.Interest)))
		sumTotal = sumTotal.Add(row.Total)
		sumPrincipal = sumPrincipal.Add(row.Principal)
	}

	assert.True(t, sumPrincipal.Equal(principal), "principal column must sum to the loan principal")
	assert.InDelta(t, payment.Mul(decimal.NewFromInt(12)).InexactFloat64(), sumTotal.InexactFloat64(), 0.12)
}

func TestBuildSchedule_ZeroRateSplitsPrincipal(t *testing.T) {
	rows, err := BuildSchedule(Terms{Principal: decimal.NewFromInt(1000), AnnualRate: decimal.Zero, TermMonths: 3})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "333.33", rows[0].Total.StringFixed(2))
	assert.Equal(t, "333.33", rows[1].Total.StringFixed(2))
	assert.Equal(t, "333.34", rows[2].Total.StringFixed(2))
	for _, row := range rows {
		assert.True(t, row.Interest.IsZero())
	}
}

func TestBuildSchedule_RejectsBadTerms(t *testing.T) {
	_, err := BuildSchedule(Terms{Principal: decimal.Zero, AnnualRate: decimal.NewFromInt(10), TermMonths: 12})
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = BuildSchedule(Terms{Principal: decimal.NewFromInt(10), AnnualRate: decimal.NewFromInt(10), TermMonths: 0})
	assert.ErrorIs(t, err, ErrInvalidTerm)

	_, err = BuildSchedule(Terms{Principal: decimal.NewFromInt(10), AnnualRate: decimal.NewFromInt(-1), TermMonths: 1})
	assert.ErrorIs(t, err, ErrInvalidRate)
}
