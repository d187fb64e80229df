package procedures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type disbursementArgs struct {
	DisbursementID uint   `json:"p_disbursement_id"`
	Notes          string `json:"p_notes"`
}

type createDisbursementArgs struct {
	LoanID uint   `json:"p_loan_id"`
	Notes  string `json:"p_notes"`
}

type completeDisbursementArgs struct {
	DisbursementID   uint   `json:"p_disbursement_id"`
	PaymentMethod    string `json:"p_payment_method"`
	PaymentReference string `json:"p_payment_reference"`
	Notes            string `json:"p_notes"`
}

type failDisbursementArgs struct {
	DisbursementID uint   `json:"p_disbursement_id"`
	Reason         string `json:"p_reason"`
}

type pendingDisbursementsArgs struct {
	Status string `json:"p_status"`
	Page   int    `json:"p_page"`
	Limit  int    `json:"p_limit"`
}

// DisbursementResult is returned by every disbursement transition
type DisbursementResult struct {
	DisbursementID   uint            `json:"disbursement_id"`
	LoanID           uint            `json:"loan_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	ReferenceCode    string          `json:"reference_code"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

func disbursementResult(d *models.Disbursement) DisbursementResult {
	return DisbursementResult{
		DisbursementID:   d.ID,
		LoanID:           d.LoanID,
		Amount:           d.Amount,
		Status:           d.Status,
		ReferenceCode:    d.ReferenceCode,
		PaymentReference: d.PaymentReference,
		CompletedAt:      d.CompletedAt,
	}
}

func (h *Host) registerDisbursements() {
	register(h, rpc.ProcCreateDisbursementOnApproval, h.createDisbursementOnApproval)
	register(h, rpc.ProcApproveDisbursement, h.approveDisbursement)
	register(h, rpc.ProcMarkDisbursementProcessing, h.markDisbursementProcessing)
	register(h, rpc.ProcCompleteDisbursement, h.completeDisbursement)
	register(h, rpc.ProcFailDisbursement, h.failDisbursement)
	register(h, rpc.ProcGetPendingDisbursements, h.getPendingDisbursements)
}

// ============================================================
// create_disbursement_on_approval
// ============================================================

func (h *Host) createDisbursementOnApproval(ctx context.Context, c *call, args createDisbursementArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	loan, err := c.tx.Loans().GetByIDForUpdate(ctx, args.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}

	d, err := createDisbursement(ctx, c, loan, args.Notes)
	if err != nil {
		return nil, err
	}
	return disbursementResult(d), nil
}

// createDisbursement opens the pending payout of an approved loan. One
// non-failed disbursement may exist per loan.
func createDisbursement(ctx context.Context, c *call, loan *models.Loan, notes string) (*models.Disbursement, error) {
	existing, err := c.tx.Disbursements().FindActiveByLoan(ctx, loan.ID)
	switch {
	case err == nil:
		return nil, conflict(fmt.Sprintf("Disbursement already exists for this loan (%s, %s)", existing.ReferenceCode, existing.Status))
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	switch domain.LoanStatus(loan.Status) {
	case domain.LoanApproved:
	case domain.LoanDisbursed, domain.LoanCompleted:
		return nil, conflict("Loan already disbursed")
	default:
		return nil, conflict(fmt.Sprintf("Loan must be approved before disbursement (status: %s)", loan.Status))
	}

	d := &models.Disbursement{
		LoanID:          loan.ID,
		Amount:          loan.Amount,
		Status:          string(domain.DisbursementPending),
		ReferenceCode:   newReferenceCode(),
		ProcessingNotes: strings.TrimSpace(notes),
		CreatedBy:       c.actorID(),
	}
	if err := c.tx.Disbursements().Create(ctx, d); err != nil {
		return nil, err
	}

	if err := c.auditNow(ctx, models.AuditDisbursementCreate, models.EntityDisbursement, d.ID, map[string]any{
		"loan_id":        loan.ID,
		"amount":         d.Amount,
		"reference_code": d.ReferenceCode,
		"notes":          d.ProcessingNotes,
	}); err != nil {
		return nil, err
	}

	c.notify(loan.BorrowerID, "disbursement_created", "Disbursement scheduled",
		fmt.Sprintf("Your loan #%d has been scheduled for disbursement (ref %s).", loan.ID, d.ReferenceCode))
	return d, nil
}

func newReferenceCode() string {
	return "DSB-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// ============================================================
// Transitions
// ============================================================

// loadForTransition locks the disbursement and checks the state machine
func loadForTransition(ctx context.Context, c *call, id uint, next domain.DisbursementStatus) (*models.Disbursement, error) {
	d, err := c.tx.Disbursements().GetByIDForUpdate(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "Disbursement not found")
	}

	current := domain.DisbursementStatus(d.Status)
	if current.CanTransitionTo(next) {
		return d, nil
	}
	if current == next || current.IsTerminal() {
		return nil, conflict(fmt.Sprintf("Disbursement already %s", current))
	}
	return nil, conflict(fmt.Sprintf("Cannot move disbursement from %s to %s", current, next))
}

func (h *Host) approveDisbursement(ctx context.Context, c *call, args disbursementArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	d, err := loadForTransition(ctx, c, args.DisbursementID, domain.DisbursementApproved)
	if err != nil {
		return nil, err
	}

	by, at := c.actorID(), c.now
	d.Status = string(domain.DisbursementApproved)
	d.ApprovedBy = &by
	d.ApprovedAt = &at
	d.ProcessingNotes = appendNote(d.ProcessingNotes, args.Notes)
	if err := c.tx.Disbursements().Update(ctx, d); err != nil {
		return nil, err
	}

	if err := c.auditNow(ctx, models.AuditDisbursementApprove, models.EntityDisbursement, d.ID, map[string]any{
		"notes": args.Notes,
	}); err != nil {
		return nil, err
	}
	return disbursementResult(d), nil
}

func (h *Host) markDisbursementProcessing(ctx context.Context, c *call, args disbursementArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	d, err := loadForTransition(ctx, c, args.DisbursementID, domain.DisbursementProcessing)
	if err != nil {
		return nil, err
	}

	by, at := c.actorID(), c.now
	d.Status = string(domain.DisbursementProcessing)
	d.ProcessedBy = &by
	d.ProcessedAt = &at
	d.ProcessingNotes = appendNote(d.ProcessingNotes, args.Notes)
	if err := c.tx.Disbursements().Update(ctx, d); err != nil {
		return nil, err
	}

	if err := c.auditNow(ctx, models.AuditDisbursementProcessing, models.EntityDisbursement, d.ID, map[string]any{
		"notes": args.Notes,
	}); err != nil {
		return nil, err
	}
	return disbursementResult(d), nil
}

func (h *Host) completeDisbursement(ctx context.Context, c *call, args completeDisbursementArgs) (any, error) {
	// 1. Authorization
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	// 2. Inputs
	method := domain.PaymentMethod(strings.TrimSpace(args.PaymentMethod))
	if !method.Valid() {
		return nil, validation("Invalid payment method")
	}
	reference, ok := required(args.PaymentReference)
	if !ok {
		return nil, validation("Payment reference is required")
	}

	// 3. State
	d, err := loadForTransition(ctx, c, args.DisbursementID, domain.DisbursementCompleted)
	if err != nil {
		return nil, err
	}
	loan, err := c.tx.Loans().GetByIDForUpdate(ctx, d.LoanID)
	if err != nil {
		return nil, lookupErr(err, "Loan not found")
	}
	if domain.LoanStatus(loan.Status) != domain.LoanApproved {
		if loan.DisbursedAt != nil {
			return nil, conflict("Loan already disbursed")
		}
		return nil, conflict(fmt.Sprintf("Loan cannot be disbursed (status: %s)", loan.Status))
	}

	// 4. Transition disbursement + loan
	by, at := c.actorID(), c.now
	d.Status = string(domain.DisbursementCompleted)
	d.Method = string(method)
	d.PaymentReference = &reference
	d.CompletedAt = &at
	if d.ProcessedBy == nil {
		d.ProcessedBy = &by
		d.ProcessedAt = &at
	}
	d.ProcessingNotes = appendNote(d.ProcessingNotes, args.Notes)
	if err := c.tx.Disbursements().Update(ctx, d); err != nil {
		return nil, err
	}

	loan.Status = string(domain.LoanDisbursed)
	loan.DisbursedAt = &at
	if err := c.tx.Loans().Update(ctx, loan); err != nil {
		return nil, err
	}

	// 5. Audit, atomic with the transition
	if err := c.auditNow(ctx, models.AuditDisbursementComplete, models.EntityDisbursement, d.ID, map[string]any{
		"loan_id":           loan.ID,
		"payment_method":    method,
		"payment_reference": reference,
		"notes":             args.Notes,
	}); err != nil {
		return nil, err
	}

	c.notify(loan.BorrowerID, "disbursement_completed", "Loan disbursed",
		fmt.Sprintf("%s has been paid out for loan #%d via %s (ref %s).", d.Amount.StringFixed(2), loan.ID, method, reference))
	return disbursementResult(d), nil
}

func (h *Host) failDisbursement(ctx context.Context, c *call, args failDisbursementArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}
	reason, ok := required(args.Reason)
	if !ok {
		return nil, validation("Failure reason is required")
	}

	d, err := loadForTransition(ctx, c, args.DisbursementID, domain.DisbursementFailed)
	if err != nil {
		return nil, err
	}

	at := c.now
	d.Status = string(domain.DisbursementFailed)
	d.FailureReason = reason
	d.FailedAt = &at
	if err := c.tx.Disbursements().Update(ctx, d); err != nil {
		return nil, err
	}

	if err := c.auditNow(ctx, models.AuditDisbursementFail, models.EntityDisbursement, d.ID, map[string]any{
		"reason": reason,
	}); err != nil {
		return nil, err
	}

	if loan, err := c.tx.Loans().GetByID(ctx, d.LoanID); err == nil {
		c.notify(loan.BorrowerID, "disbursement_failed", "Disbursement failed",
			fmt.Sprintf("The payout for loan #%d could not be completed: %s", loan.ID, reason))
	}
	return disbursementResult(d), nil
}

// ============================================================
// get_pending_disbursements
// ============================================================

// PendingDisbursements is a page of open disbursements
type PendingDisbursements struct {
	Disbursements []*models.Disbursement `json:"disbursements"`
	Meta          *pagination.Meta       `json:"meta"`
}

var openDisbursementStatuses = []string{
	string(domain.DisbursementPending),
	string(domain.DisbursementApproved),
	string(domain.DisbursementProcessing),
}

func (h *Host) getPendingDisbursements(ctx context.Context, c *call, args pendingDisbursementsArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	statuses := openDisbursementStatuses
	if s := strings.TrimSpace(args.Status); s != "" {
		if !contains(openDisbursementStatuses, s) {
			return nil, validation("Status must be pending, approved or processing")
		}
		statuses = []string{s}
	}

	params := pagination.New(args.Page, args.Limit)
	items, total, err := c.tx.Disbursements().ListByStatus(ctx, statuses, params.Offset, params.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.Disbursement{}
	}
	return PendingDisbursements{Disbursements: items, Meta: pagination.GetMeta(params, total)}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
