package services

import (
	"context"
	"testing"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func (e *env) seedInstallments(loanID uint, amount int64, first time.Time, n int) {
	entries := make([]*models.ScheduleEntry, n)
	for i := range entries {
		entries[i] = &models.ScheduleEntry{
			LoanID:            loanID,
			InstallmentNumber: i + 1,
			DueDate:           first.AddDate(0, i, 0),
			PrincipalAmount:   decimal.NewFromInt(amount),
			InterestAmount:    decimal.Zero,
			FeeAmount:         decimal.Zero,
			LateFee:           decimal.Zero,
			TotalAmount:       decimal.NewFromInt(amount),
			AmountPaid:        decimal.Zero,
			Status:            string(domain.InstallmentPending),
		}
	}
	require.NoError(e.t, e.store.Schedules().CreateBatch(context.Background(), entries))
}

func TestScheduleService_GenerateMatchesAmortization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	loan := e.loan(domain.LoanApproved, 5000)

	res, err := e.schedule.Generate(ctx, e.officer, loan.ID, nil)
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 12, res.Data.InstallmentsCreated)

	expected := res.Data.MonthlyPayment.Mul(decimal.NewFromInt(12))
	diff := res.Data.TotalAmount.Sub(expected).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.12")), "total %s vs %s", res.Data.TotalAmount, expected)

	view, err := e.schedule.Get(ctx, e.client, loan.ID)
	require.NoError(t, err)
	require.True(t, view.Success, view.Error)
	assert.Len(t, view.Data.Installments, 12)
	assert.True(t, view.Data.Summary.TotalDue.Equal(res.Data.TotalAmount))

	again, err := e.schedule.Generate(ctx, e.officer, loan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.CodeConflict, again.Code)
}

func TestScheduleService_PaymentFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	loan := e.loan(domain.LoanDisbursed, 1000)
	e.seedInstallments(loan.ID, 250, testNow.AddDate(0, 1, 0), 4)

	bad, err := e.schedule.RecordPayment(ctx, e.client, loan.ID, PaymentInput{Amount: decimal.NewFromInt(10), Method: "cheque"})
	require.NoError(t, err)
	assert.Equal(t, "Invalid payment method", bad.Error)
	assert.Zero(t, e.exec.count(rpc.ProcRecordPayment))

	rec, err := e.schedule.RecordPayment(ctx, e.client, loan.ID, PaymentInput{Amount: decimal.NewFromInt(400), Method: "cash", Reference: "RCPT-1"})
	require.NoError(t, err)
	require.True(t, rec.Success, rec.Error)
	assert.Equal(t, string(domain.PaymentPending), rec.Data.Status)

	applied, err := e.schedule.ApplyPayment(ctx, e.officer, rec.Data.PaymentID, nil)
	require.NoError(t, err)
	require.True(t, applied.Success, applied.Error)
	assert.Equal(t, 2, applied.Data.EntriesUpdated)
	assert.True(t, applied.Data.AmountApplied.Equal(decimal.NewFromInt(400)))

	view, err := e.schedule.Get(ctx, e.client, loan.ID)
	require.NoError(t, err)
	assert.True(t, view.Data.Summary.TotalPaid.Equal(decimal.NewFromInt(400)))
	assert.True(t, view.Data.Summary.Balance.Equal(decimal.NewFromInt(600)))

	twice, err := e.schedule.ApplyPayment(ctx, e.officer, rec.Data.PaymentID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Payment already applied", twice.Error)
}

func TestScheduleService_OverdueAndLateFees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	loan := e.loan(domain.LoanDisbursed, 500)
	e.seedInstallments(loan.ID, 250, testNow.AddDate(0, 0, -10), 2)

	marked, err := e.schedule.MarkOverdue(ctx, e.officer)
	require.NoError(t, err)
	require.True(t, marked.Success, marked.Error)
	assert.Equal(t, 1, marked.Data.MarkedCount)

	rerun, err := e.schedule.MarkOverdue(ctx, e.officer)
	require.NoError(t, err)
	assert.Equal(t, 0, rerun.Data.MarkedCount)

	entries, err := e.store.Schedules().ListByLoan(ctx, loan.ID)
	require.NoError(t, err)
	first := entries[0].ID

	quote, err := e.schedule.CalculateLateFee(ctx, e.client, first)
	require.NoError(t, err)
	require.True(t, quote.Success, quote.Error)
	assert.True(t, quote.Data.LateFee.Equal(decimal.RequireFromString("2.5")))

	fee, err := e.schedule.ApplyLateFee(ctx, e.officer, first)
	require.NoError(t, err)
	require.True(t, fee.Success, fee.Error)

	noReason, err := e.schedule.WaiveLateFee(ctx, e.officer, fee.Data.LateFeeID, "")
	require.NoError(t, err)
	assert.Equal(t, "Waiver reason is required", noReason.Error)
	assert.Zero(t, e.exec.count(rpc.ProcWaiveLateFee))

	waived, err := e.schedule.WaiveLateFee(ctx, e.officer, fee.Data.LateFeeID, "hospitalised")
	require.NoError(t, err)
	require.True(t, waived.Success, waived.Error)
	assert.True(t, waived.Data.WaivedAmount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, string(domain.InstallmentOverdue), waived.Data.ScheduleStatus)
}

func TestCronService_MarkOverdueRunsAsSystem(t *testing.T) {
	e := newEnv(t)
	loan := e.loan(domain.LoanDisbursed, 300)
	e.seedInstallments(loan.ID, 100, testNow.AddDate(0, -3, 0), 3)

	cron, err := NewCronService(e.schedule, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	cron.MarkOverdue(context.Background())

	entries, err := e.store.Schedules().ListByLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	for _, en := range entries {
		assert.Equal(t, string(domain.InstallmentOverdue), en.Status)
	}

	_, err = NewCronService(e.schedule, "every tuesday", nil)
	assert.Error(t, err)
}
