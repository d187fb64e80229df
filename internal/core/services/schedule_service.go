package services

import (
	"context"
	"strings"
	"time"

	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ScheduleService drives the payment schedule ledger through the gateway
type ScheduleService struct {
	gw  Gateway
	log *zap.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(gw Gateway, log *zap.Logger) *ScheduleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScheduleService{gw: gw, log: log.Named("schedule")}
}

// PaymentInput represents a money-in event reported against a loan
type PaymentInput struct {
	Amount    decimal.Decimal `json:"amount" validate:"positive_decimal"`
	Method    string          `json:"method" validate:"required"`
	Reference string          `json:"reference" validate:"max=100"`
}

// PaymentRecorded is the outcome of recording a payment
type PaymentRecorded struct {
	PaymentID uint            `json:"payment_id"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
}

// LateFeeApplied is the outcome of charging a late fee
type LateFeeApplied struct {
	LateFeeID    uint            `json:"late_fee_id"`
	Amount       decimal.Decimal `json:"amount"`
	TotalLateFee decimal.Decimal `json:"total_late_fee"`
}

// LateFeeWaived is the outcome of waiving a late fee
type LateFeeWaived struct {
	LateFeeID      uint            `json:"late_fee_id"`
	WaivedAmount   decimal.Decimal `json:"waived_amount"`
	ScheduleStatus string          `json:"schedule_status"`
	LoanCompleted  bool            `json:"loan_completed"`
}

// Generate builds the amortization schedule of an approved loan. A loan
// that already has a schedule is refused rather than regenerated.
func (s *ScheduleService) Generate(ctx context.Context, actor Actor, loanID uint, start *time.Time) (Result[procedures.ScheduleGenerated], error) {
	params := rpc.Params{"p_loan_id": loanID}
	if start != nil {
		params["p_start_date"] = start.UTC()
	}
	res, err := invoke[procedures.ScheduleGenerated](ctx, s.gw, actor, rpc.ProcGeneratePaymentSchedule, params)
	if err == nil && res.Success {
		s.log.Info("payment schedule generated",
			zap.Uint("loan_id", loanID),
			zap.Int("installments", res.Data.InstallmentsCreated),
			zap.String("monthly_payment", res.Data.MonthlyPayment.StringFixed(2)))
	}
	return res, err
}

// Get returns the schedule and its totals
func (s *ScheduleService) Get(ctx context.Context, actor Actor, loanID uint) (Result[procedures.ScheduleView], error) {
	return invoke[procedures.ScheduleView](ctx, s.gw, actor, rpc.ProcGetPaymentSchedule, rpc.Params{"p_loan_id": loanID})
}

// RecordPayment registers a pending payment against a disbursed loan
func (s *ScheduleService) RecordPayment(ctx context.Context, actor Actor, loanID uint, in PaymentInput) (Result[PaymentRecorded], error) {
	method := domain.PaymentMethod(strings.TrimSpace(in.Method))
	if !method.Valid() {
		return Failed[PaymentRecorded](domain.CodeValidation, "Invalid payment method"), nil
	}
	if !in.Amount.IsPositive() {
		return Failed[PaymentRecorded](domain.CodeValidation, "Payment amount must be greater than 0"), nil
	}
	return invoke[PaymentRecorded](ctx, s.gw, actor, rpc.ProcRecordPayment, rpc.Params{
		"p_loan_id":   loanID,
		"p_amount":    in.Amount,
		"p_method":    string(method),
		"p_reference": strings.TrimSpace(in.Reference),
	})
}

// ApplyPayment allocates a recorded payment oldest installment first. A nil
// amount applies the whole payment.
func (s *ScheduleService) ApplyPayment(ctx context.Context, actor Actor, paymentID uint, amount *decimal.Decimal) (Result[procedures.PaymentApplied], error) {
	params := rpc.Params{"p_payment_id": paymentID}
	if amount != nil {
		if !amount.IsPositive() {
			return Failed[procedures.PaymentApplied](domain.CodeValidation, "Amount must be greater than 0 and not exceed the payment"), nil
		}
		params["p_amount"] = *amount
	}
	res, err := invoke[procedures.PaymentApplied](ctx, s.gw, actor, rpc.ProcApplyPaymentToSchedule, params)
	if err == nil && res.Success {
		s.log.Info("payment applied",
			zap.Uint("payment_id", paymentID),
			zap.Int("entries_updated", res.Data.EntriesUpdated),
			zap.String("unapplied", res.Data.UnappliedAmount.StringFixed(2)),
			zap.Bool("loan_completed", res.Data.LoanCompleted))
	}
	return res, err
}

// MarkOverdue flips past-due unpaid installments to overdue. Safe to re-run.
func (s *ScheduleService) MarkOverdue(ctx context.Context, actor Actor) (Result[procedures.OverdueMarked], error) {
	return invoke[procedures.OverdueMarked](ctx, s.gw, actor, rpc.ProcMarkOverduePayments, rpc.Params{})
}

// CalculateLateFee quotes the fee owed on an installment without charging it
func (s *ScheduleService) CalculateLateFee(ctx context.Context, actor Actor, scheduleID uint) (Result[procedures.LateFeeQuote], error) {
	return invoke[procedures.LateFeeQuote](ctx, s.gw, actor, rpc.ProcCalculateLateFee, rpc.Params{"p_schedule_id": scheduleID})
}

// ApplyLateFee charges the difference between the computed and charged fee
func (s *ScheduleService) ApplyLateFee(ctx context.Context, actor Actor, scheduleID uint) (Result[LateFeeApplied], error) {
	return invoke[LateFeeApplied](ctx, s.gw, actor, rpc.ProcApplyLateFee, rpc.Params{"p_schedule_id": scheduleID})
}

// WaiveLateFee forgives a charged late fee; principal and interest stay due
func (s *ScheduleService) WaiveLateFee(ctx context.Context, actor Actor, lateFeeID uint, reason string) (Result[LateFeeWaived], error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Failed[LateFeeWaived](domain.CodeValidation, "Waiver reason is required"), nil
	}
	res, err := invoke[LateFeeWaived](ctx, s.gw, actor, rpc.ProcWaiveLateFee, rpc.Params{
		"p_late_fee_id": lateFeeID,
		"p_reason":      reason,
	})
	if err == nil && res.Success {
		s.log.Info("late fee waived",
			zap.Uint("late_fee_id", lateFeeID),
			zap.String("amount", res.Data.WaivedAmount.StringFixed(2)),
			zap.Uint("actor_id", actor.UserID))
	}
	return res, err
}
