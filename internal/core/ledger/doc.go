// Package ledger holds the pure money math behind a loan's repayment
// schedule: amortization, payment allocation, overdue detection and late
// fees. Amounts are decimals rounded to cents.
package ledger
