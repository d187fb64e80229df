package ledger

import (
	"testing"
	"time"

	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fourQuarters(start time.Time) []Entry {
	entries := make([]Entry, 4)
	for i := range entries {
		entries[i] = Entry{
			ID:      uint(i + 1),
			Number:  i + 1,
			DueDate: start.AddDate(0, i+1, 0),
			Total:   d("250"),
			Paid:    decimal.Zero,
			Status:  domain.InstallmentPending,
		}
	}
	return entries
}

func TestAllocate_OldestFirstWithoutOverflow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := fourQuarters(start)
	// shuffle to prove ordering does not depend on input order
	entries[0], entries[3] = entries[3], entries[0]

	allocs, remainder := Allocate(entries, d("400"))

	require.Len(t, allocs, 2)
	assert.Equal(t, uint(1), allocs[0].EntryID)
	assert.Equal(t, "250.00", allocs[0].Amount.StringFixed(2))
	assert.Equal(t, uint(2), allocs[1].EntryID)
	assert.Equal(t, "150.00", allocs[1].Amount.StringFixed(2))
	assert.True(t, remainder.IsZero())

	sum := decimal.Zero
	for _, a := range allocs {
		sum = sum.Add(a.Amount)
	}
	assert.Equal(t, "400.00", sum.StringFixed(2))
}

func TestAllocate_SkipsSettledAndReturnsRemainder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := fourQuarters(start)
	entries[0].Status = domain.InstallmentPaid
	entries[0].Paid = d("250")
	entries[1].Paid = d("100")
	entries[1].Status = domain.InstallmentPartiallyPaid

	allocs, remainder := Allocate(entries, d("1000"))

	require.Len(t, allocs, 3)
	assert.Equal(t, "150.00", allocs[0].Amount.StringFixed(2))
	assert.Equal(t, "250.00", allocs[1].Amount.StringFixed(2))
	assert.Equal(t, "250.00", allocs[2].Amount.StringFixed(2))
	assert.Equal(t, "350.00", remainder.StringFixed(2))
}

func TestStatusFor(t *testing.T) {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before := due.AddDate(0, 0, -1)
	after := due.AddDate(0, 0, 2)

	assert.Equal(t, domain.InstallmentPaid, StatusFor(d("100"), d("100"), due, after))
	assert.Equal(t, domain.InstallmentOverdue, StatusFor(d("100"), d("40"), due, after))
	assert.Equal(t, domain.InstallmentPartiallyPaid, StatusFor(d("100"), d("40"), due, before))
	assert.Equal(t, domain.InstallmentPending, StatusFor(d("100"), decimal.Zero, due, due))
}

func TestBalance_NeverNegative(t *testing.T) {
	assert.True(t, Balance(d("10"), d("15")).IsZero())
	assert.Equal(t, "5.00", Balance(d("15"), d("10")).StringFixed(2))
}
