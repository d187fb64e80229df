package services

import (
	"context"
	"fmt"
	"strings"

	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApprovalService drives multi-stage approval requests through the gateway.
// Stage decisions are checked locally before the procedure is called; the
// procedure checks them again.
type ApprovalService struct {
	gw  Gateway
	log *zap.Logger
}

// NewApprovalService creates a new approval workflow service
func NewApprovalService(gw Gateway, log *zap.Logger) *ApprovalService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ApprovalService{gw: gw, log: log.Named("approvals")}
}

// ApplicationInput represents a loan application
type ApplicationInput struct {
	Amount       decimal.Decimal  `json:"amount" validate:"positive_decimal"`
	TermMonths   int              `json:"term_months" validate:"required,min=1,max=360"`
	Purpose      string           `json:"purpose" validate:"max=500"`
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty"`
}

// StartInput opens an approval request
type StartInput struct {
	RequestType string                        `json:"request_type" validate:"required,oneof=loan_application role_change"`
	ReferenceID uint                          `json:"reference_id"`
	RoleChange  *procedures.RoleChangePayload `json:"role_change,omitempty"`
}

// Submit files a loan application for the actor and starts its workflow
func (s *ApprovalService) Submit(ctx context.Context, actor Actor, in ApplicationInput) (Result[procedures.WorkflowStarted], error) {
	if !actor.Roles.Has(domain.RoleClient) {
		return Failed[procedures.WorkflowStarted](domain.CodeUnauthorized, "Unauthorized: only clients can apply for loans"), nil
	}
	if !in.Amount.IsPositive() {
		return Failed[procedures.WorkflowStarted](domain.CodeValidation, "Loan amount must be greater than 0"), nil
	}

	params := rpc.Params{
		"p_amount":      in.Amount,
		"p_term_months": in.TermMonths,
		"p_purpose":     in.Purpose,
	}
	if in.InterestRate != nil {
		params["p_interest_rate"] = *in.InterestRate
	}
	res, err := invoke[procedures.WorkflowStarted](ctx, s.gw, actor, rpc.ProcSubmitLoanApplication, params)
	if err == nil && res.Success {
		s.log.Info("loan application submitted",
			zap.Uint("loan_id", res.Data.LoanID),
			zap.Uint("request_id", res.Data.RequestID),
			zap.Uint("borrower_id", actor.UserID))
	}
	return res, err
}

// Start opens an approval request for an existing reference
func (s *ApprovalService) Start(ctx context.Context, actor Actor, in StartInput) (Result[procedures.WorkflowStarted], error) {
	params := rpc.Params{
		"p_request_type": strings.TrimSpace(in.RequestType),
		"p_reference_id": in.ReferenceID,
	}
	if in.RoleChange != nil {
		params["p_payload"] = in.RoleChange
	}
	return invoke[procedures.WorkflowStarted](ctx, s.gw, actor, rpc.ProcStartApprovalWorkflow, params)
}

// GetRequest returns a request with its instantiated stages and progress
func (s *ApprovalService) GetRequest(ctx context.Context, actor Actor, id uint) (Result[procedures.RequestView], error) {
	return invoke[procedures.RequestView](ctx, s.gw, actor, rpc.ProcGetApprovalRequest, rpc.Params{"p_request_id": id})
}

// GetStage returns one stage execution and its request status
func (s *ApprovalService) GetStage(ctx context.Context, actor Actor, id uint) (Result[procedures.StageView], error) {
	return invoke[procedures.StageView](ctx, s.gw, actor, rpc.ProcGetStageExecution, rpc.Params{"p_stage_id": id})
}

// ApproveStage signs off the current stage, advancing or completing the request
func (s *ApprovalService) ApproveStage(ctx context.Context, actor Actor, stageID uint, notes string) (Result[procedures.StageDecision], error) {
	if fail, ok, err := s.precheck(ctx, actor, stageID); !ok {
		return fail, err
	}

	res, err := invoke[procedures.StageDecision](ctx, s.gw, actor, rpc.ProcApproveWorkflowStage, rpc.Params{
		"p_stage_id": stageID,
		"p_notes":    strings.TrimSpace(notes),
	})
	if err == nil && res.Success {
		s.log.Info("stage approved",
			zap.Uint("request_id", res.Data.RequestID),
			zap.Uint("stage_id", stageID),
			zap.String("request_status", res.Data.RequestStatus))
	}
	return res, err
}

// RejectStage rejects the current stage, terminating the request
func (s *ApprovalService) RejectStage(ctx context.Context, actor Actor, stageID uint, notes string) (Result[procedures.StageDecision], error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return Failed[procedures.StageDecision](domain.CodeValidation, "Rejection notes are required"), nil
	}
	if fail, ok, err := s.precheck(ctx, actor, stageID); !ok {
		return fail, err
	}

	res, err := invoke[procedures.StageDecision](ctx, s.gw, actor, rpc.ProcRejectWorkflowStage, rpc.Params{
		"p_stage_id": stageID,
		"p_notes":    notes,
	})
	if err == nil && res.Success {
		s.log.Info("stage rejected",
			zap.Uint("request_id", res.Data.RequestID),
			zap.Uint("stage_id", stageID))
	}
	return res, err
}

// Cancel withdraws an in-progress request
func (s *ApprovalService) Cancel(ctx context.Context, actor Actor, requestID uint, reason string) (Result[map[string]any], error) {
	return invoke[map[string]any](ctx, s.gw, actor, rpc.ProcCancelApprovalRequest, rpc.Params{
		"p_request_id": requestID,
		"p_reason":     reason,
	})
}

// precheck refuses decisions that cannot succeed: a stage that is no longer
// pending, a request that is closed, or an actor lacking the stage role
func (s *ApprovalService) precheck(ctx context.Context, actor Actor, stageID uint) (Result[procedures.StageDecision], bool, error) {
	view, err := s.GetStage(ctx, actor, stageID)
	if err != nil {
		return Result[procedures.StageDecision]{}, false, err
	}
	fail := func(code, msg string) (Result[procedures.StageDecision], bool, error) {
		return Failed[procedures.StageDecision](code, msg), false, nil
	}
	if !view.Success {
		return fail(view.Code, view.Error)
	}
	if view.Data.Stage == nil {
		return fail(domain.CodeUnexpected, MsgUnexpected)
	}

	stage := view.Data.Stage
	if view.Data.RequestStatus != string(domain.RequestInProgress) {
		return fail(domain.CodeConflict, fmt.Sprintf("Approval request already %s", view.Data.RequestStatus))
	}
	if stage.Status != string(domain.StagePending) {
		return fail(domain.CodeConflict, fmt.Sprintf("Stage already %s", stage.Status))
	}
	role, err := domain.ParseRole(stage.AssignedRole)
	if err != nil {
		return fail(domain.CodeUnexpected, MsgUnexpected)
	}
	if !actor.Roles.Satisfies(role) {
		return fail(domain.CodeUnauthorized, fmt.Sprintf("Unauthorized: stage requires the %s role", role))
	}
	return Result[procedures.StageDecision]{}, true, nil
}
