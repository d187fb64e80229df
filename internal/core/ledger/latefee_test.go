package ledger

import (
	"testing"
	"time"

	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLateFeePolicy_Compute(t *testing.T) {
	p := DefaultLateFeePolicy()

	tests := []struct {
		name    string
		balance string
		days    int
		want    string
	}{
		{"not overdue", "1000", 0, "0.00"},
		{"ten days", "1000", 10, "10.00"},
		{"ratio cap", "1000", 400, "250.00"},
		{"absolute cap", "10000", 400, "1000.00"},
		{"nothing owed", "0", 30, "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Compute(d(tt.balance), tt.days).StringFixed(2))
		})
	}
}

func TestLateFeePolicy_GraceDays(t *testing.T) {
	p := DefaultLateFeePolicy()
	p.GraceDays = 5

	assert.True(t, p.Compute(d("1000"), 5).IsZero())
	assert.Equal(t, "2.00", p.Compute(d("1000"), 7).StringFixed(2))
}

func TestOverdueHelpers(t *testing.T) {
	due := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	later := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)

	assert.False(t, IsPastDue(due, sameDay))
	assert.Equal(t, 0, DaysOverdue(due, sameDay))
	assert.Equal(t, 10, DaysOverdue(due, later))

	assert.True(t, ShouldMarkOverdue(domain.InstallmentPending, d("100"), decimal.Zero, due, later))
	assert.True(t, ShouldMarkOverdue(domain.InstallmentPartiallyPaid, d("100"), d("50"), due, later))
	assert.False(t, ShouldMarkOverdue(domain.InstallmentOverdue, d("100"), decimal.Zero, due, later))
	assert.False(t, ShouldMarkOverdue(domain.InstallmentPending, d("100"), d("100"), due, later))
	assert.False(t, ShouldMarkOverdue(domain.InstallmentPending, d("100"), decimal.Zero, due, sameDay))
}
