package ledger

import (
	"time"

	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
)

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsPastDue reports whether now falls on a day after due
func IsPastDue(due, now time.Time) bool {
	return dateOf(now).After(dateOf(due))
}

// DaysOverdue counts whole days since due, zero when not past due
func DaysOverdue(due, now time.Time) int {
	if !IsPastDue(due, now) {
		return 0
	}
	return int(dateOf(now).Sub(dateOf(due)).Hours() / 24)
}

// ShouldMarkOverdue reports whether an entry must flip to overdue
func ShouldMarkOverdue(status domain.InstallmentStatus, total, paid decimal.Decimal, due, now time.Time) bool {
	if status != domain.InstallmentPending && status != domain.InstallmentPartiallyPaid {
		return false
	}
	return Balance(total, paid).IsPositive() && IsPastDue(due, now)
}
