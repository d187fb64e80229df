package procedures

import (
	"context"
	"testing"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeParams(id uint, method, ref string) rpc.Params {
	return rpc.Params{"p_disbursement_id": id, "p_payment_method": method, "p_payment_reference": ref}
}

func TestCreateDisbursementOnApproval(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()

	d := f.getDisbursement(id)
	assert.Equal(t, string(domain.DisbursementPending), d.Status)
	assert.True(t, d.Amount.Equal(loan.Amount))
	assert.Regexp(t, `^DSB-[0-9A-F]{12}$`, d.ReferenceCode)

	// a second call is refused, never duplicated
	again := f.exec(f.officer, rpc.ProcCreateDisbursementOnApproval, rpc.Params{"p_loan_id": loan.ID})
	assert.False(t, again.ok())
	assert.Equal(t, domain.CodeConflict, again.code())
	assert.Contains(t, again.err(), "already exists")
}

func TestCreateDisbursementOnApproval_RequiresApprovedLoan(t *testing.T) {
	f := newFixture(t)
	loan := f.loan(domain.LoanPending, 1000, 6, 20)

	out := f.exec(f.admin, rpc.ProcCreateDisbursementOnApproval, rpc.Params{"p_loan_id": loan.ID})
	assert.False(t, out.ok())
	assert.Contains(t, out.err(), "must be approved")

	missing := f.exec(f.admin, rpc.ProcCreateDisbursementOnApproval, rpc.Params{"p_loan_id": 999})
	assert.Equal(t, domain.CodeNotFound, missing.code())
}

func TestDisbursementLifecycle(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()

	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id, "p_notes": "docs verified"})
	f.must(f.admin, rpc.ProcMarkDisbursementProcessing, rpc.Params{"p_disbursement_id": id})
	out := f.must(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "bank_transfer", "  TRX-001  "))

	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "TRX-001", out["payment_reference"])

	d := f.getDisbursement(id)
	assert.Equal(t, string(domain.MethodBankTransfer), d.Method)
	assert.Contains(t, d.ProcessingNotes, "docs verified")
	require.NotNil(t, d.CompletedAt)

	got := f.getLoan(loan.ID)
	assert.Equal(t, string(domain.LoanDisbursed), got.Status)
	require.NotNil(t, got.DisbursedAt)
	assert.Equal(t, testNow, *got.DisbursedAt)

	audits, err := f.store.Audit().ListByEntity(context.Background(), models.EntityDisbursement, id)
	require.NoError(t, err)
	require.Len(t, audits, 4)
	assert.Equal(t, models.AuditDisbursementComplete, audits[0].Action)
	assert.Equal(t, f.officer.ID, audits[0].ActorID)
	assert.Contains(t, audits[0].Metadata, `"payment_method":"bank_transfer"`)
	assert.Contains(t, audits[0].Metadata, `"payment_reference":"TRX-001"`)
}

func TestCompleteDisbursement_Twice(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()
	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})

	f.must(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "cash", "R-1"))
	first := f.getLoan(loan.ID)

	f.now = f.now.Add(1)
	second := f.exec(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "cash", "R-2"))
	assert.False(t, second.ok())
	assert.Contains(t, second.err(), "already")

	after := f.getLoan(loan.ID)
	assert.Equal(t, first.DisbursedAt, after.DisbursedAt)
	assert.Equal(t, "R-1", *f.getDisbursement(id).PaymentReference)
}

func TestCompleteDisbursement_InvalidMethod(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()
	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})

	out := f.exec(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "invalid_method", "R-1"))

	assert.False(t, out.ok())
	assert.Contains(t, out.err(), "Invalid payment method")
	assert.Equal(t, domain.CodeValidation, out.code())
	assert.Equal(t, string(domain.LoanApproved), f.getLoan(loan.ID).Status)
}

func TestCompleteDisbursement_ClientIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()
	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})

	out := f.exec(f.client, rpc.ProcCompleteDisbursement, completeParams(id, "bank_transfer", "R-1"))

	assert.False(t, out.ok())
	assert.Contains(t, out.err(), "Unauthorized")
	got := f.getLoan(loan.ID)
	assert.Equal(t, string(domain.LoanApproved), got.Status)
	assert.Nil(t, got.DisbursedAt)
}

func TestCompleteDisbursement_Validation(t *testing.T) {
	f := newFixture(t)
	_, id := f.approvedLoanWithDisbursement()

	blank := f.exec(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "cash", "   "))
	assert.Contains(t, blank.err(), "Payment reference is required")

	// pending cannot jump straight to completed
	early := f.exec(f.officer, rpc.ProcCompleteDisbursement, completeParams(id, "cash", "R-1"))
	assert.Equal(t, domain.CodeConflict, early.code())

	anonymous := f.exec(nil, rpc.ProcCompleteDisbursement, completeParams(id, "cash", "R-1"))
	assert.Contains(t, anonymous.err(), "Unauthorized")
}

func TestApproveDisbursement_Guards(t *testing.T) {
	f := newFixture(t)
	_, id := f.approvedLoanWithDisbursement()

	denied := f.exec(f.client, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})
	assert.Contains(t, denied.err(), "Unauthorized")
	assert.Equal(t, string(domain.DisbursementPending), f.getDisbursement(id).Status)

	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})
	again := f.exec(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": id})
	assert.Equal(t, "Disbursement already approved", again.err())
}

func TestFailDisbursement(t *testing.T) {
	f := newFixture(t)
	loan, id := f.approvedLoanWithDisbursement()

	noReason := f.exec(f.officer, rpc.ProcFailDisbursement, rpc.Params{"p_disbursement_id": id, "p_reason": " "})
	assert.Contains(t, noReason.err(), "reason is required")

	f.must(f.officer, rpc.ProcFailDisbursement, rpc.Params{"p_disbursement_id": id, "p_reason": "account closed"})
	d := f.getDisbursement(id)
	assert.Equal(t, string(domain.DisbursementFailed), d.Status)
	assert.Equal(t, "account closed", d.FailureReason)

	terminal := f.exec(f.officer, rpc.ProcFailDisbursement, rpc.Params{"p_disbursement_id": id, "p_reason": "again"})
	assert.Equal(t, "Disbursement already failed", terminal.err())

	// a failed payout frees the loan for a new one
	retry := f.must(f.officer, rpc.ProcCreateDisbursementOnApproval, rpc.Params{"p_loan_id": loan.ID})
	assert.NotEqual(t, id, retry.id("disbursement_id"))
}

func TestGetPendingDisbursements(t *testing.T) {
	f := newFixture(t)
	_, first := f.approvedLoanWithDisbursement()
	_, second := f.approvedLoanWithDisbursement()
	_, third := f.approvedLoanWithDisbursement()
	f.must(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": second})
	f.must(f.officer, rpc.ProcFailDisbursement, rpc.Params{"p_disbursement_id": third, "p_reason": "x"})

	out := f.must(f.officer, rpc.ProcGetPendingDisbursements, rpc.Params{})
	items := out["disbursements"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, float64(first), items[0].(map[string]any)["id"])

	onlyApproved := f.must(f.officer, rpc.ProcGetPendingDisbursements, rpc.Params{"p_status": "approved"})
	assert.Len(t, onlyApproved["disbursements"].([]any), 1)

	bad := f.exec(f.officer, rpc.ProcGetPendingDisbursements, rpc.Params{"p_status": "completed"})
	assert.Equal(t, domain.CodeValidation, bad.code())

	denied := f.exec(f.client, rpc.ProcGetPendingDisbursements, rpc.Params{})
	assert.Contains(t, denied.err(), "Unauthorized")
}

func TestExecute_UnknownProcedureIsTransportError(t *testing.T) {
	f := newFixture(t)
	_, err := f.host.Execute(context.Background(), "drop_tables", nil)
	assert.ErrorIs(t, err, ErrUnknownProcedure)
}

func TestExecute_BadArgumentsAreValidationFailures(t *testing.T) {
	f := newFixture(t)
	out := f.exec(f.officer, rpc.ProcApproveDisbursement, rpc.Params{"p_disbursement_id": "not-a-number"})
	assert.Equal(t, domain.CodeValidation, out.code())
}
