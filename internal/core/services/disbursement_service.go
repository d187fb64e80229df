package services

import (
	"context"
	"strings"

	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"go.uber.org/zap"
)

// DisbursementService drives the disbursement lifecycle through the gateway
type DisbursementService struct {
	gw  Gateway
	log *zap.Logger
}

// NewDisbursementService creates a new disbursement service
func NewDisbursementService(gw Gateway, log *zap.Logger) *DisbursementService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DisbursementService{gw: gw, log: log.Named("disbursements")}
}

// CompleteInput represents complete disbursement input
type CompleteInput struct {
	PaymentMethod    string `json:"payment_method" validate:"required"`
	PaymentReference string `json:"payment_reference" validate:"required"`
	Notes            string `json:"notes"`
}

// PendingFilter selects open disbursements
type PendingFilter struct {
	Status string
	Page   int
	Limit  int
}

type disbursementResult = Result[procedures.DisbursementResult]

func staffOnly(a Actor) (string, bool) {
	if a.Roles.IsStaff() {
		return "", true
	}
	return "Unauthorized: admin or loan officer role required", false
}

// CreateOnApproval opens a pending disbursement for an approved loan
func (s *DisbursementService) CreateOnApproval(ctx context.Context, actor Actor, loanID uint, notes string) (disbursementResult, error) {
	if msg, ok := staffOnly(actor); !ok {
		return Failed[procedures.DisbursementResult](domain.CodeUnauthorized, msg), nil
	}
	res, err := invoke[procedures.DisbursementResult](ctx, s.gw, actor, rpc.ProcCreateDisbursementOnApproval, rpc.Params{
		"p_loan_id": loanID,
		"p_notes":   notes,
	})
	if err == nil && res.Success {
		s.log.Info("disbursement created",
			zap.Uint("loan_id", loanID),
			zap.Uint("disbursement_id", res.Data.DisbursementID),
			zap.String("reference_code", res.Data.ReferenceCode))
	}
	return res, err
}

// Approve moves a pending disbursement to approved
func (s *DisbursementService) Approve(ctx context.Context, actor Actor, id uint, notes string) (disbursementResult, error) {
	return s.transition(ctx, actor, rpc.ProcApproveDisbursement, id, notes)
}

// MarkProcessing moves an approved disbursement to processing
func (s *DisbursementService) MarkProcessing(ctx context.Context, actor Actor, id uint, notes string) (disbursementResult, error) {
	return s.transition(ctx, actor, rpc.ProcMarkDisbursementProcessing, id, notes)
}

func (s *DisbursementService) transition(ctx context.Context, actor Actor, procedure string, id uint, notes string) (disbursementResult, error) {
	if msg, ok := staffOnly(actor); !ok {
		return Failed[procedures.DisbursementResult](domain.CodeUnauthorized, msg), nil
	}
	return invoke[procedures.DisbursementResult](ctx, s.gw, actor, procedure, rpc.Params{
		"p_disbursement_id": id,
		"p_notes":           notes,
	})
}

// Complete pays out the disbursement and marks its loan disbursed
func (s *DisbursementService) Complete(ctx context.Context, actor Actor, id uint, input CompleteInput) (disbursementResult, error) {
	if msg, ok := staffOnly(actor); !ok {
		return Failed[procedures.DisbursementResult](domain.CodeUnauthorized, msg), nil
	}
	method := domain.PaymentMethod(strings.TrimSpace(input.PaymentMethod))
	if !method.Valid() {
		return Failed[procedures.DisbursementResult](domain.CodeValidation, "Invalid payment method"), nil
	}
	reference := strings.TrimSpace(input.PaymentReference)
	if reference == "" {
		return Failed[procedures.DisbursementResult](domain.CodeValidation, "Payment reference is required"), nil
	}

	res, err := invoke[procedures.DisbursementResult](ctx, s.gw, actor, rpc.ProcCompleteDisbursement, rpc.Params{
		"p_disbursement_id":   id,
		"p_payment_method":    string(method),
		"p_payment_reference": reference,
		"p_notes":             input.Notes,
	})
	if err == nil && res.Success {
		s.log.Info("disbursement completed",
			zap.Uint("disbursement_id", id),
			zap.Uint("loan_id", res.Data.LoanID),
			zap.String("method", string(method)),
			zap.Uint("actor_id", actor.UserID))
	}
	return res, err
}

// Fail closes a non-terminal disbursement as failed
func (s *DisbursementService) Fail(ctx context.Context, actor Actor, id uint, reason string) (disbursementResult, error) {
	if msg, ok := staffOnly(actor); !ok {
		return Failed[procedures.DisbursementResult](domain.CodeUnauthorized, msg), nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Failed[procedures.DisbursementResult](domain.CodeValidation, "Failure reason is required"), nil
	}
	res, err := invoke[procedures.DisbursementResult](ctx, s.gw, actor, rpc.ProcFailDisbursement, rpc.Params{
		"p_disbursement_id": id,
		"p_reason":          reason,
	})
	if err == nil && res.Success {
		s.log.Warn("disbursement failed", zap.Uint("disbursement_id", id), zap.String("reason", reason))
	}
	return res, err
}

// ListPending pages through open disbursements, oldest first
func (s *DisbursementService) ListPending(ctx context.Context, actor Actor, f PendingFilter) (Result[procedures.PendingDisbursements], error) {
	if msg, ok := staffOnly(actor); !ok {
		return Failed[procedures.PendingDisbursements](domain.CodeUnauthorized, msg), nil
	}
	return invoke[procedures.PendingDisbursements](ctx, s.gw, actor, rpc.ProcGetPendingDisbursements, rpc.Params{
		"p_status": f.Status,
		"p_page":   f.Page,
		"p_limit":  f.Limit,
	})
}
