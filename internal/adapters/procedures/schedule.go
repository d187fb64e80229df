package procedures

import (
	"context"
	"fmt"
	"strings"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/ledger"

	"github.com/shopspring/decimal"
)

type loanArgs struct {
	LoanID    uint       `json:"p_loan_id"`
	StartDate *time.Time `json:"p_start_date"`
}

type recordPaymentArgs struct {
	LoanID    uint            `json:"p_loan_id"`
	Amount    decimal.Decimal `json:"p_amount"`
	Method    string          `json:"p_method"`
	Reference string          `json:"p_reference"`
}

type applyPaymentArgs struct {
	PaymentID uint             `json:"p_payment_id"`
	Amount    *decimal.Decimal `json:"p_amount"`
}

type overdueArgs struct {
	AsOf *time.Time `json:"p_as_of"`
}

type scheduleEntryArgs struct {
	ScheduleID uint `json:"p_schedule_id"`
}

type waiveArgs struct {
	LateFeeID uint   `json:"p_late_fee_id"`
	Reason    string `json:"p_reason"`
}

// ScheduleGenerated is returned by generate_payment_schedule
type ScheduleGenerated struct {
	LoanID              uint            `json:"loan_id"`
	InstallmentsCreated int             `json:"installments_created"`
	MonthlyPayment      decimal.Decimal `json:"monthly_payment"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	FirstDueDate        time.Time       `json:"first_due_date"`
}

// ScheduleSummary totals a loan's schedule
type ScheduleSummary struct {
	TotalDue     decimal.Decimal `json:"total_due"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	Balance      decimal.Decimal `json:"balance"`
	OverdueCount int             `json:"overdue_count"`
	NextDueDate  *time.Time      `json:"next_due_date,omitempty"`
}

// ScheduleView is returned by get_payment_schedule
type ScheduleView struct {
	LoanID       uint                            `json:"loan_id"`
	Installments []*models.ScheduleEntryResponse `json:"installments"`
	Summary      ScheduleSummary                 `json:"summary"`
}

// PaymentApplied is returned by apply_payment_to_schedule
type PaymentApplied struct {
	PaymentID       uint            `json:"payment_id"`
	EntriesUpdated  int             `json:"entries_updated"`
	AmountApplied   decimal.Decimal `json:"amount_applied"`
	UnappliedAmount decimal.Decimal `json:"unapplied_amount"`
	LoanCompleted   bool            `json:"loan_completed"`
}

// OverdueMarked is returned by mark_overdue_payments
type OverdueMarked struct {
	MarkedCount int       `json:"marked_count"`
	CheckedAt   time.Time `json:"checked_at"`
}

// LateFeeQuote is returned by calculate_late_fee
type LateFeeQuote struct {
	ScheduleID     uint            `json:"schedule_id"`
	DaysOverdue    int             `json:"days_overdue"`
	Balance        decimal.Decimal `json:"balance"`
	LateFee        decimal.Decimal `json:"late_fee"`
	AlreadyApplied decimal.Decimal `json:"already_applied"`
}

func (h *Host) registerSchedule() {
	register(h, rpc.ProcGeneratePaymentSchedule, h.generatePaymentSchedule)
	register(h, rpc.ProcGetPaymentSchedule, h.getPaymentSchedule)
	register(h, rpc.ProcRecordPayment, h.recordPayment)
	register(h, rpc.ProcApplyPaymentToSchedule, h.applyPaymentToSchedule)
	register(h, rpc.ProcMarkOverduePayments, h.markOverduePayments)
	register(h, rpc.ProcCalculateLateFee, h.calculateLateFee)
	register(h, rpc.ProcApplyLateFee, h.applyLateFee)
	register(h, rpc.ProcWaiveLateFee, h.waiveLateFee)
}

// ============================================================
// generate / get
// ============================================================

func (h *Host) generatePaymentSchedule(ctx context.Context, c *call, args loanArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	loan, err := c.tx.Loans().GetByIDForUpdate(ctx, args.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}
	switch domain.LoanStatus(loan.Status) {
	case domain.LoanApproved, domain.LoanDisbursed:
	default:
		return nil, conflict(fmt.Sprintf("Loan must be approved or disbursed (status: %s)", loan.Status))
	}

	count, err := c.tx.Schedules().CountByLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, conflict("Payment schedule already exists for this loan")
	}

	start := c.now
	switch {
	case args.StartDate != nil:
		start = *args.StartDate
	case loan.DisbursedAt != nil:
		start = *loan.DisbursedAt
	}

	rows, err := ledger.BuildSchedule(ledger.Terms{
		Principal:  loan.Amount,
		AnnualRate: loan.InterestRate,
		TermMonths: loan.TermMonths,
		Start:      start,
	})
	if err != nil {
		return nil, validation(err.Error())
	}

	entries := make([]*models.ScheduleEntry, len(rows))
	total := decimal.Zero
	for i, r := range rows {
		entries[i] = &models.ScheduleEntry{
			LoanID:            loan.ID,
			InstallmentNumber: r.Number,
			DueDate:           r.DueDate,
			PrincipalAmount:   r.Principal,
			InterestAmount:    r.Interest,
			FeeAmount:         r.Fee,
			LateFee:           decimal.Zero,
			TotalAmount:       r.Total,
			AmountPaid:        decimal.Zero,
			Status:            string(domain.InstallmentPending),
		}
		total = total.Add(r.Total)
	}
	if err := c.tx.Schedules().CreateBatch(ctx, entries); err != nil {
		return nil, err
	}

	out := ScheduleGenerated{
		LoanID:              loan.ID,
		InstallmentsCreated: len(entries),
		MonthlyPayment:      ledger.MonthlyPayment(loan.Amount, loan.InterestRate, loan.TermMonths),
		TotalAmount:         total,
		FirstDueDate:        rows[0].DueDate,
	}
	c.audit(models.AuditScheduleGenerate, models.EntityLoan, loan.ID, out)
	return out, nil
}

func (h *Host) getPaymentSchedule(ctx context.Context, c *call, args loanArgs) (any, error) {
	loan, err := c.tx.Loans().GetByID(ctx, args.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}
	if err := c.requireSelfOrStaff(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}

	entries, err := c.tx.Schedules().ListByLoan(ctx, loan.ID)
	if err != nil {
		return nil, err
	}

	view := ScheduleView{LoanID: loan.ID, Installments: make([]*models.ScheduleEntryResponse, 0, len(entries))}
	sum := ScheduleSummary{TotalDue: decimal.Zero, TotalPaid: decimal.Zero, Balance: decimal.Zero}
	for _, e := range entries {
		view.Installments = append(view.Installments, e.ToResponse())
		sum.TotalDue = sum.TotalDue.Add(e.TotalAmount)
		sum.TotalPaid = sum.TotalPaid.Add(e.AmountPaid)
		sum.Balance = sum.Balance.Add(e.Balance())
		if e.Status == string(domain.InstallmentOverdue) {
			sum.OverdueCount++
		}
		if sum.NextDueDate == nil && !domain.InstallmentStatus(e.Status).IsSettled() {
			due := e.DueDate
			sum.NextDueDate = &due
		}
	}
	view.Summary = sum
	return view, nil
}

// ============================================================
// Payments
// ============================================================

func (h *Host) recordPayment(ctx context.Context, c *call, args recordPaymentArgs) (any, error) {
	loan, err := c.tx.Loans().GetByID(ctx, args.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}
	if err := c.requireSelfOrStaff(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}

	method := domain.PaymentMethod(strings.TrimSpace(args.Method))
	if !method.Valid() {
		return nil, validation("Invalid payment method")
	}
	if !args.Amount.IsPositive() {
		return nil, validation("Payment amount must be greater than 0")
	}
	if loan.Status != string(domain.LoanDisbursed) {
		return nil, conflict(fmt.Sprintf("Loan is not in repayment (status: %s)", loan.Status))
	}

	p := &models.Payment{
		LoanID:          loan.ID,
		Amount:          args.Amount.Round(2),
		Method:          string(method),
		Reference:       strings.TrimSpace(args.Reference),
		Status:          string(domain.PaymentPending),
		AppliedAmount:   decimal.Zero,
		UnappliedAmount: decimal.Zero,
		RecordedBy:      c.actorID(),
	}
	if err := c.tx.Payments().Create(ctx, p); err != nil {
		return nil, err
	}

	c.audit(models.AuditPaymentRecord, models.EntityPayment, p.ID, map[string]any{
		"loan_id":   loan.ID,
		"amount":    p.Amount,
		"method":    p.Method,
		"reference": p.Reference,
	})
	return map[string]any{"payment_id": p.ID, "status": p.Status, "amount": p.Amount}, nil
}

func (h *Host) applyPaymentToSchedule(ctx context.Context, c *call, args applyPaymentArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	p, err := c.tx.Payments().GetByIDForUpdate(ctx, args.PaymentID)
	if err != nil {
		return nil, lookupErr(err, "Payment not found")
	}
	switch domain.PaymentStatus(p.Status) {
	case domain.PaymentCompleted:
		return nil, conflict("Payment already applied")
	case domain.PaymentFailed:
		return nil, conflict("Payment has failed and cannot be applied")
	}

	amount := p.Amount
	if args.Amount != nil {
		if !args.Amount.IsPositive() || args.Amount.GreaterThan(p.Amount) {
			return nil, validation("Amount must be greater than 0 and not exceed the payment")
		}
		amount = *args.Amount
	}

	entries, err := c.tx.Schedules().ListByLoanForUpdate(ctx, p.LoanID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, validation("Loan has no payment schedule")
	}

	byID := make(map[uint]*models.ScheduleEntry, len(entries))
	view := make([]ledger.Entry, len(entries))
	for i, e := range entries {
		byID[e.ID] = e
		view[i] = e.LedgerEntry()
	}

	allocs, remainder := ledger.Allocate(view, amount)
	applied := amount.Sub(remainder)
	for _, a := range allocs {
		e := byID[a.EntryID]
		e.AmountPaid = e.AmountPaid.Add(a.Amount)
		e.Status = string(ledger.StatusFor(e.TotalAmount, e.AmountPaid, e.DueDate, c.now))
		if e.Status == string(domain.InstallmentPaid) {
			at := c.now
			e.PaidAt = &at
		}
		if err := c.tx.Schedules().Update(ctx, e); err != nil {
			return nil, err
		}
	}

	at := c.now
	p.Status = string(domain.PaymentCompleted)
	p.AppliedAmount = applied
	p.UnappliedAmount = p.Amount.Sub(applied)
	p.AppliedAt = &at
	if err := c.tx.Payments().Update(ctx, p); err != nil {
		return nil, err
	}

	completed, err := completeLoanIfSettled(ctx, c, p.LoanID, entries)
	if err != nil {
		return nil, err
	}

	out := PaymentApplied{
		PaymentID:       p.ID,
		EntriesUpdated:  len(allocs),
		AmountApplied:   applied,
		UnappliedAmount: p.UnappliedAmount,
		LoanCompleted:   completed,
	}
	c.audit(models.AuditPaymentApply, models.EntityPayment, p.ID, out)
	if loan, err := c.tx.Loans().GetByID(ctx, p.LoanID); err == nil {
		c.notify(loan.BorrowerID, "payment_applied", "Payment received",
			fmt.Sprintf("%s has been applied to loan #%d.", applied.StringFixed(2), loan.ID))
	}
	return out, nil
}

// completeLoanIfSettled closes the loan once no installment accepts money
func completeLoanIfSettled(ctx context.Context, c *call, loanID uint, entries []*models.ScheduleEntry) (bool, error) {
	for _, e := range entries {
		if !domain.InstallmentStatus(e.Status).IsSettled() {
			return false, nil
		}
	}

	loan, err := c.tx.Loans().GetByIDForUpdate(ctx, loanID)
	if err != nil {
		return false, lookupErr(err, "Loan not found")
	}
	if loan.Status == string(domain.LoanCompleted) {
		return false, nil
	}
	loan.Status = string(domain.LoanCompleted)
	if err := c.tx.Loans().Update(ctx, loan); err != nil {
		return false, err
	}
	return true, nil
}

// ============================================================
// Overdue batch
// ============================================================

var overdueCandidates = []string{
	string(domain.InstallmentPending),
	string(domain.InstallmentPartiallyPaid),
}

// markOverduePayments runs as the nightly job when no caller is attached
func (h *Host) markOverduePayments(ctx context.Context, c *call, args overdueArgs) (any, error) {
	if c.hasCaller {
		if err := c.requireStaff(ctx); err != nil {
			return nil, err
		}
	}

	now := c.now
	if args.AsOf != nil {
		now = *args.AsOf
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	entries, err := c.tx.Schedules().ListDueBefore(ctx, today, overdueCandidates)
	if err != nil {
		return nil, err
	}

	marked := 0
	for _, e := range entries {
		if !ledger.ShouldMarkOverdue(domain.InstallmentStatus(e.Status), e.TotalAmount, e.AmountPaid, e.DueDate, now) {
			continue
		}
		e.Status = string(domain.InstallmentOverdue)
		e.DaysOverdue = ledger.DaysOverdue(e.DueDate, now)
		if err := c.tx.Schedules().Update(ctx, e); err != nil {
			return nil, err
		}
		marked++
		c.audit(models.AuditOverdueMark, models.EntityScheduleEntry, e.ID, map[string]any{
			"loan_id":      e.LoanID,
			"days_overdue": e.DaysOverdue,
			"balance":      e.Balance(),
		})
	}

	// keep the day count of entries already overdue current
	stale, err := c.tx.Schedules().ListDueBefore(ctx, today, []string{string(domain.InstallmentOverdue)})
	if err != nil {
		return nil, err
	}
	for _, e := range stale {
		if days := ledger.DaysOverdue(e.DueDate, now); days != e.DaysOverdue {
			e.DaysOverdue = days
			if err := c.tx.Schedules().Update(ctx, e); err != nil {
				return nil, err
			}
		}
	}

	return OverdueMarked{MarkedCount: marked, CheckedAt: now}, nil
}

// ============================================================
// Late fees
// ============================================================

// lateFeeBase is the outstanding amount penalties accrue on: the balance
// before any late fee was added
func lateFeeBase(e *models.ScheduleEntry) decimal.Decimal {
	return ledger.Balance(e.TotalAmount.Sub(e.LateFee), e.AmountPaid)
}

// chargedLateFees sums every fee ever charged on an installment, waived ones
// included, so a waiver is not charged again on the next run.
func chargedLateFees(ctx context.Context, c *call, scheduleID uint) (decimal.Decimal, error) {
	fees, err := c.tx.LateFees().ListBySchedule(ctx, scheduleID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, f := range fees {
		total = total.Add(f.Amount)
	}
	return total, nil
}

func (h *Host) calculateLateFee(ctx context.Context, c *call, args scheduleEntryArgs) (any, error) {
	e, err := c.tx.Schedules().GetByID(ctx, args.ScheduleID)
	if err != nil {
		return nil, lookupErr(err, "Installment not found")
	}
	loan, err := c.tx.Loans().GetByID(ctx, e.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}
	if err := c.requireSelfOrStaff(ctx, loan.BorrowerID); err != nil {
		return nil, err
	}

	quote := LateFeeQuote{
		ScheduleID:     e.ID,
		Balance:        lateFeeBase(e),
		LateFee:        decimal.Zero,
		AlreadyApplied: e.LateFee,
	}
	if domain.InstallmentStatus(e.Status).IsSettled() {
		return quote, nil
	}
	quote.DaysOverdue = ledger.DaysOverdue(e.DueDate, c.now)
	quote.LateFee = h.cfg.LateFee.Compute(quote.Balance, quote.DaysOverdue)
	return quote, nil
}

func (h *Host) applyLateFee(ctx context.Context, c *call, args scheduleEntryArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	e, err := c.tx.Schedules().GetByIDForUpdate(ctx, args.ScheduleID)
	if err != nil {
		return nil, lookupErr(err, "Installment not found")
	}
	if e.Status != string(domain.InstallmentOverdue) {
		return nil, conflict(fmt.Sprintf("Installment is not overdue (status: %s)", e.Status))
	}

	charged, err := chargedLateFees(ctx, c, e.ID)
	if err != nil {
		return nil, err
	}

	days := ledger.DaysOverdue(e.DueDate, c.now)
	due := h.cfg.LateFee.Compute(lateFeeBase(e), days)
	delta := due.Sub(charged)
	if !delta.IsPositive() {
		return nil, conflict("Late fee already applied for the current overdue period")
	}

	fee := &models.LateFee{
		ScheduleID:   e.ID,
		LoanID:       e.LoanID,
		Amount:       delta,
		DaysOverdue:  days,
		Status:       string(domain.LateFeeApplied),
		WaivedAmount: decimal.Zero,
		CreatedBy:    c.actorID(),
	}
	if err := c.tx.LateFees().Create(ctx, fee); err != nil {
		return nil, err
	}

	e.LateFee = e.LateFee.Add(delta)
	e.TotalAmount = e.TotalAmount.Add(delta)
	e.DaysOverdue = days
	if err := c.tx.Schedules().Update(ctx, e); err != nil {
		return nil, err
	}

	c.audit(models.AuditLateFeeApply, models.EntityLateFee, fee.ID, map[string]any{
		"schedule_id":  e.ID,
		"amount":       delta,
		"days_overdue": days,
	})
	if loan, err := c.tx.Loans().GetByID(ctx, e.LoanID); err == nil {
		c.notify(loan.BorrowerID, "late_fee_applied", "Late fee charged",
			fmt.Sprintf("A late fee of %s was added to installment %d of loan #%d.", delta.StringFixed(2), e.InstallmentNumber, loan.ID))
	}
	return map[string]any{"late_fee_id": fee.ID, "amount": delta, "total_late_fee": e.LateFee}, nil
}

func (h *Host) waiveLateFee(ctx context.Context, c *call, args waiveArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}
	reason, ok := required(args.Reason)
	if !ok {
		return nil, validation("Waiver reason is required")
	}

	fee, err := c.tx.LateFees().GetByIDForUpdate(ctx, args.LateFeeID)
	if err != nil {
		return nil, lookupErr(err, "Late fee not found")
	}
	if fee.Status == string(domain.LateFeeWaived) {
		return nil, conflict("Late fee already waived")
	}

	e, err := c.tx.Schedules().GetByIDForUpdate(ctx, fee.ScheduleID)
	if err != nil {
		return nil, lookupErr(err, "Installment not found")
	}

	// only the unpaid part of the late fee is forgiven; principal and
	// interest stay due and money already received is never dropped
	forgiven := decimal.Min(fee.Amount, e.LateFee, e.Balance())
	if !forgiven.IsPositive() {
		return nil, conflict("Late fee has already been paid")
	}
	e.LateFee = e.LateFee.Sub(forgiven)
	e.TotalAmount = e.TotalAmount.Sub(forgiven)
	if !domain.InstallmentStatus(e.Status).IsSettled() && !e.Balance().IsPositive() {
		e.Status = string(domain.InstallmentWaived)
	}
	if err := c.tx.Schedules().Update(ctx, e); err != nil {
		return nil, err
	}

	by, at := c.actorID(), c.now
	fee.Status = string(domain.LateFeeWaived)
	fee.WaivedAmount = forgiven
	fee.Reason = reason
	fee.WaivedBy = &by
	fee.WaivedAt = &at
	if err := c.tx.LateFees().Update(ctx, fee); err != nil {
		return nil, err
	}

	completed := false
	if e.Status == string(domain.InstallmentWaived) {
		entries, err := c.tx.Schedules().ListByLoan(ctx, e.LoanID)
		if err != nil {
			return nil, err
		}
		if completed, err = completeLoanIfSettled(ctx, c, e.LoanID, entries); err != nil {
			return nil, err
		}
	}

	c.audit(models.AuditLateFeeWaive, models.EntityLateFee, fee.ID, map[string]any{
		"schedule_id": e.ID,
		"amount":      forgiven,
		"reason":      reason,
	})
	return map[string]any{
		"late_fee_id":     fee.ID,
		"waived_amount":   forgiven,
		"schedule_status": e.Status,
		"loan_completed":  completed,
	}, nil
}
