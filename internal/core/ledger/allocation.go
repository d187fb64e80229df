package ledger

import (
	"sort"
	"time"

	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Entry is the allocation view of a schedule row
type Entry struct {
	ID      uint
	Number  int
	DueDate time.Time
	Total   decimal.Decimal
	Paid    decimal.Decimal
	Status  domain.InstallmentStatus
}

// Allocation is the share of a payment applied to one entry
type Allocation struct {
	EntryID uint
	Amount  decimal.Decimal
}

// Balance is total minus paid, floored at zero
func Balance(total, paid decimal.Decimal) decimal.Decimal {
	b := total.Sub(paid)
	if b.IsNegative() {
		return decimal.Zero
	}
	return b
}

// Allocate spreads amount over entries oldest first. Each entry receives at
// most its remaining balance; whatever is left is returned as remainder.
func Allocate(entries []Entry, amount decimal.Decimal) ([]Allocation, decimal.Decimal) {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].DueDate.Equal(ordered[j].DueDate) {
			return ordered[i].DueDate.Before(ordered[j].DueDate)
		}
		return ordered[i].Number < ordered[j].Number
	})

	remaining := amount
	var allocs []Allocation
	for _, e := range ordered {
		if !remaining.IsPositive() {
			break
		}
		if e.Status.IsSettled() {
			continue
		}
		balance := Balance(e.Total, e.Paid)
		if !balance.IsPositive() {
			continue
		}
		share := decimal.Min(balance, remaining)
		allocs = append(allocs, Allocation{EntryID: e.ID, Amount: share})
		remaining = remaining.Sub(share)
	}

	return allocs, remaining
}

// StatusFor derives the status of an unsettled entry from its amounts
func StatusFor(total, paid decimal.Decimal, due, now time.Time) domain.InstallmentStatus {
	switch {
	case !Balance(total, paid).IsPositive():
		return domain.InstallmentPaid
	case IsPastDue(due, now):
		return domain.InstallmentOverdue
	case paid.IsPositive():
		return domain.InstallmentPartiallyPaid
	default:
		return domain.InstallmentPending
	}
}
