package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Amortization errors
var (
	ErrInvalidPrincipal = errors.New("principal must be greater than 0")
	ErrInvalidTerm      = errors.New("term must be at least 1 month")
	ErrInvalidRate      = errors.New("rate must not be negative")
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Terms describes the loan a schedule is generated for
type Terms struct {
	Principal  decimal.Decimal
	AnnualRate decimal.Decimal // percent, 32 = 32%
	TermMonths int
	Start      time.Time
}

// Installment is one generated schedule row
type Installment struct {
	Number    int
	DueDate   time.Time
	Principal decimal.Decimal
	Interest  decimal.Decimal
	Fee       decimal.Decimal
	Total     decimal.Decimal
}

func (t Terms) validate() error {
	if !t.Principal.IsPositive() {
		return ErrInvalidPrincipal
	}
	if t.TermMonths < 1 {
		return ErrInvalidTerm
	}
	if t.AnnualRate.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

// MonthlyRate converts an annual percentage into a periodic fraction
func MonthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(hundred).Div(twelve)
}

// MonthlyPayment returns the level payment for the terms, rounded to cents.
// With a zero rate it is the principal split evenly.
func MonthlyPayment(principal, annualRate decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths < 1 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(termMonths))
	r := MonthlyRate(annualRate)
	if r.IsZero() {
		return principal.Div(n).Round(2)
	}

	growth := decimal.NewFromInt(1).Add(r).Pow(n)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1))).Round(2)
}

// BuildSchedule generates the amortization rows for the terms. The final
// row absorbs rounding so the principal column sums to the loan principal.
func BuildSchedule(t Terms) ([]Installment, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	r := MonthlyRate(t.AnnualRate)
	payment := MonthlyPayment(t.Principal, t.AnnualRate, t.TermMonths)
	balance := t.Principal
	rows := make([]Installment, 0, t.TermMonths)

	for i := 1; i <= t.TermMonths; i++ {
		interest := balance.Mul(r).Round(2)
		principal := payment.Sub(interest)
		if i == t.TermMonths || principal.GreaterThan(balance) {
			principal = balance
		}
		balance = balance.Sub(principal)

		rows = append(rows, Installment{
			Number:    i,
			DueDate:   t.Start.AddDate(0, i, 0),
			Principal: principal,
			Interest:  interest,
			Fee:       decimal.Zero,
			Total:     principal.Add(interest),
		})
	}

	return rows, nil
}
