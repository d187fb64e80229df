package procedures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/roles"

	"github.com/shopspring/decimal"
)

// RoleChangePayload is the payload of a role_change request
type RoleChangePayload struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	Action string `json:"action"`
}

type startWorkflowArgs struct {
	RequestType string          `json:"p_request_type"`
	ReferenceID uint            `json:"p_reference_id"`
	Payload     json.RawMessage `json:"p_payload"`
}

type submitLoanArgs struct {
	Amount       decimal.Decimal  `json:"p_amount"`
	TermMonths   int              `json:"p_term_months"`
	Purpose      string           `json:"p_purpose"`
	InterestRate *decimal.Decimal `json:"p_interest_rate"`
}

type requestArgs struct {
	RequestID uint   `json:"p_request_id"`
	Reason    string `json:"p_reason"`
}

type stageArgs struct {
	StageID uint   `json:"p_stage_id"`
	Notes   string `json:"p_notes"`
}

// WorkflowStarted is returned when a request enters its first stage
type WorkflowStarted struct {
	LoanID       uint   `json:"loan_id,omitempty"`
	RequestID    uint   `json:"request_id"`
	StageID      uint   `json:"stage_id"`
	Status       string `json:"status"`
	CurrentStage int    `json:"current_stage"`
	TotalStages  int    `json:"total_stages"`
}

// RequestView is a request with its instantiated stages
type RequestView struct {
	Request         *models.ApprovalRequest `json:"request"`
	ProgressPercent float64                 `json:"progress_percent"`
}

// StageView is a stage together with the status of its request
type StageView struct {
	Stage         *models.StageExecution `json:"stage"`
	RequestStatus string                 `json:"request_status"`
	RequestType   string                 `json:"request_type"`
}

// StageDecision is returned by approve and reject
type StageDecision struct {
	RequestID      uint   `json:"request_id"`
	StageID        uint   `json:"stage_id"`
	StageStatus    string `json:"stage_status"`
	RequestStatus  string `json:"request_status"`
	CurrentStage   int    `json:"current_stage"`
	NextStageID    *uint  `json:"next_stage_id,omitempty"`
	DisbursementID *uint  `json:"disbursement_id,omitempty"`
}

func (h *Host) registerWorkflow() {
	register(h, rpc.ProcSubmitLoanApplication, h.submitLoanApplication)
	register(h, rpc.ProcStartApprovalWorkflow, h.startApprovalWorkflow)
	register(h, rpc.ProcGetApprovalRequest, h.getApprovalRequest)
	register(h, rpc.ProcGetStageExecution, h.getStageExecution)
	register(h, rpc.ProcApproveWorkflowStage, h.approveWorkflowStage)
	register(h, rpc.ProcRejectWorkflowStage, h.rejectWorkflowStage)
	register(h, rpc.ProcCancelApprovalRequest, h.cancelApprovalRequest)
}

// Progress is approved stages over total stages, as a percentage
func Progress(stages []models.StageExecution, total int) float64 {
	if total <= 0 {
		return 0
	}
	approved := 0
	for _, s := range stages {
		if s.Status == string(domain.StageApproved) {
			approved++
		}
	}
	return float64(approved) * 100 / float64(total)
}

// ============================================================
// Start
// ============================================================

func (h *Host) submitLoanApplication(ctx context.Context, c *call, args submitLoanArgs) (any, error) {
	u, err := c.user(ctx)
	if err != nil {
		return nil, err
	}
	if !u.RoleSet().Has(domain.RoleClient) {
		return nil, unauthorized("Unauthorized: only clients can apply for loans")
	}

	if !args.Amount.IsPositive() {
		return nil, validation("Loan amount must be greater than 0")
	}
	if args.TermMonths < 1 || args.TermMonths > h.cfg.MaxTermMonths {
		return nil, validation(fmt.Sprintf("Term must be between 1 and %d months", h.cfg.MaxTermMonths))
	}
	rate := h.cfg.DefaultRate
	if args.InterestRate != nil {
		rate = *args.InterestRate
	}
	if rate.IsNegative() || rate.GreaterThan(h.cfg.MaxRate) {
		return nil, validation(fmt.Sprintf("Interest rate must be between 0 and %s%%", h.cfg.MaxRate.String()))
	}

	loan := &models.Loan{
		BorrowerID:   u.ID,
		Amount:       args.Amount.Round(2),
		TermMonths:   args.TermMonths,
		InterestRate: rate,
		Purpose:      strings.TrimSpace(args.Purpose),
		Status:       string(domain.LoanPending),
	}
	if err := c.tx.Loans().Create(ctx, loan); err != nil {
		return nil, err
	}

	started, err := startWorkflow(ctx, c, domain.RequestLoanApplication, loan.ID, "")
	if err != nil {
		return nil, err
	}
	started.LoanID = loan.ID

	c.audit(models.AuditLoanSubmit, models.EntityLoan, loan.ID, map[string]any{
		"amount":      loan.Amount,
		"term_months": loan.TermMonths,
		"rate":        loan.InterestRate,
		"request_id":  started.RequestID,
	})
	return started, nil
}

func (h *Host) startApprovalWorkflow(ctx context.Context, c *call, args startWorkflowArgs) (any, error) {
	u, err := c.user(ctx)
	if err != nil {
		return nil, err
	}

	typ := domain.RequestType(strings.TrimSpace(args.RequestType))
	if !typ.Valid() {
		return nil, validation("Unknown request type")
	}

	var payload string
	referenceID := args.ReferenceID

	switch typ {
	case domain.RequestLoanApplication:
		loan, err := c.tx.Loans().GetByIDForUpdate(ctx, referenceID)
		if err != nil {
			return nil, lookupErr(err, "Loan not found")
		}
		if err := c.requireSelfOrStaff(ctx, loan.BorrowerID); err != nil {
			return nil, err
		}
		if loan.Status != string(domain.LoanPending) {
			return nil, conflict(fmt.Sprintf("Loan is not pending (status: %s)", loan.Status))
		}

	case domain.RequestRoleChange:
		var p RoleChangePayload
		if len(args.Payload) == 0 || json.Unmarshal(args.Payload, &p) != nil {
			return nil, validation("Role change payload is required")
		}
		if p.UserID == 0 {
			p.UserID = referenceID
		}
		if referenceID != 0 && referenceID != p.UserID {
			return nil, validation("Reference does not match payload user")
		}
		referenceID = p.UserID

		set := u.RoleSet()
		if u.ID != p.UserID && !set.Has(domain.RoleAdmin) && !h.validator.IsSuperAdmin(u.Email) {
			return nil, unauthorized("Unauthorized: admin role required")
		}
		if _, err := checkRoleChange(ctx, c, p); err != nil {
			return nil, err
		}
		b, _ := json.Marshal(p)
		payload = string(b)
	}

	return startWorkflow(ctx, c, typ, referenceID, payload)
}

// startWorkflow creates the request and instantiates only its first stage
func startWorkflow(ctx context.Context, c *call, typ domain.RequestType, referenceID uint, payload string) (*WorkflowStarted, error) {
	_, err := c.tx.Approvals().FindOpenRequest(ctx, string(typ), referenceID)
	switch {
	case err == nil:
		return nil, conflict("An approval request is already in progress")
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, err
	}

	defs, err := c.tx.Approvals().ListStageDefinitions(ctx, string(typ))
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, validation(fmt.Sprintf("No approval stages configured for %s", typ))
	}

	req := &models.ApprovalRequest{
		RequestType:  string(typ),
		ReferenceID:  referenceID,
		RequestedBy:  c.actorID(),
		Status:       string(domain.RequestInProgress),
		CurrentStage: defs[0].Sequence,
		TotalStages:  len(defs),
		Payload:      payload,
	}
	if err := c.tx.Approvals().CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	stage, err := instantiateStage(ctx, c, req.ID, defs[0])
	if err != nil {
		return nil, err
	}

	c.audit(models.AuditRequestStart, models.EntityApprovalRequest, req.ID, map[string]any{
		"request_type": typ,
		"reference_id": referenceID,
		"total_stages": req.TotalStages,
	})

	return &WorkflowStarted{
		RequestID:    req.ID,
		StageID:      stage.ID,
		Status:       req.Status,
		CurrentStage: req.CurrentStage,
		TotalStages:  req.TotalStages,
	}, nil
}

func instantiateStage(ctx context.Context, c *call, requestID uint, def *models.ApprovalStageDefinition) (*models.StageExecution, error) {
	stage := &models.StageExecution{
		RequestID:    requestID,
		Sequence:     def.Sequence,
		Name:         def.Name,
		AssignedRole: def.Role,
		Status:       string(domain.StagePending),
	}
	if err := c.tx.Approvals().CreateStage(ctx, stage); err != nil {
		return nil, err
	}
	return stage, nil
}

// ============================================================
// Reads
// ============================================================

func (h *Host) getApprovalRequest(ctx context.Context, c *call, args requestArgs) (any, error) {
	req, err := c.tx.Approvals().GetRequest(ctx, args.RequestID)
	if err != nil {
		return nil, lookupErr(err, "Approval request not found")
	}
	if err := c.requireSelfOrStaff(ctx, req.RequestedBy); err != nil {
		return nil, err
	}
	return RequestView{Request: req, ProgressPercent: Progress(req.Stages, req.TotalStages)}, nil
}

func (h *Host) getStageExecution(ctx context.Context, c *call, args stageArgs) (any, error) {
	stage, err := c.tx.Approvals().GetStage(ctx, args.StageID)
	if err != nil {
		return nil, lookupErr(err, "Stage not found")
	}
	req, err := c.tx.Approvals().GetRequest(ctx, stage.RequestID)
	if err != nil {
		return nil, lookupErr(err, "Approval request not found")
	}
	if err := c.requireSelfOrStaff(ctx, req.RequestedBy); err != nil {
		return nil, err
	}
	return StageView{Stage: stage, RequestStatus: req.Status, RequestType: req.RequestType}, nil
}

// ============================================================
// Decisions
// ============================================================

// loadPendingStage locks the stage and its request and checks both can
// still be decided by the caller
func loadPendingStage(ctx context.Context, c *call, stageID uint) (*models.StageExecution, *models.ApprovalRequest, error) {
	set, err := c.roles(ctx)
	if err != nil {
		return nil, nil, err
	}

	stage, err := c.tx.Approvals().GetStageForUpdate(ctx, stageID)
	if err != nil {
		return nil, nil, lookupErr(err, "Stage not found")
	}
	req, err := c.tx.Approvals().GetRequestForUpdate(ctx, stage.RequestID)
	if err != nil {
		return nil, nil, lookupErr(err, "Approval request not found")
	}

	if req.Status != string(domain.RequestInProgress) {
		return nil, nil, conflict(fmt.Sprintf("Approval request already %s", req.Status))
	}
	if stage.Status != string(domain.StagePending) {
		return nil, nil, conflict(fmt.Sprintf("Stage already %s", stage.Status))
	}

	role, err := domain.ParseRole(stage.AssignedRole)
	if err != nil {
		return nil, nil, fmt.Errorf("stage %d: %w", stage.ID, err)
	}
	if !set.Satisfies(role) {
		return nil, nil, unauthorized(fmt.Sprintf("Unauthorized: stage requires the %s role", role))
	}
	return stage, req, nil
}

func (h *Host) approveWorkflowStage(ctx context.Context, c *call, args stageArgs) (any, error) {
	stage, req, err := loadPendingStage(ctx, c, args.StageID)
	if err != nil {
		return nil, err
	}

	by, at := c.actorID(), c.now
	stage.Status = string(domain.StageApproved)
	stage.Notes = strings.TrimSpace(args.Notes)
	stage.DecidedBy = &by
	stage.DecidedAt = &at
	if err := c.tx.Approvals().UpdateStage(ctx, stage); err != nil {
		return nil, err
	}

	out := &StageDecision{RequestID: req.ID, StageID: stage.ID, StageStatus: stage.Status}

	next, err := nextDefinition(ctx, c, req.RequestType, stage.Sequence)
	if err != nil {
		return nil, err
	}

	if next != nil {
		nextStage, err := instantiateStage(ctx, c, req.ID, next)
		if err != nil {
			return nil, err
		}
		req.CurrentStage = next.Sequence
		out.NextStageID = &nextStage.ID
	} else {
		req.Status = string(domain.RequestCompleted)
		req.CompletedAt = &at
		disbursementID, err := onRequestCompleted(ctx, c, req)
		if err != nil {
			return nil, err
		}
		out.DisbursementID = disbursementID
	}
	if err := c.tx.Approvals().UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	out.RequestStatus = req.Status
	out.CurrentStage = req.CurrentStage

	c.audit(models.AuditStageApprove, models.EntityApprovalRequest, req.ID, map[string]any{
		"stage_id": stage.ID,
		"sequence": stage.Sequence,
		"notes":    stage.Notes,
	})
	if req.Status == string(domain.RequestCompleted) {
		c.notify(req.RequestedBy, "approval_completed", "Request approved",
			fmt.Sprintf("Your %s request #%d has been approved.", humanize(req.RequestType), req.ID))
	}
	return out, nil
}

func (h *Host) rejectWorkflowStage(ctx context.Context, c *call, args stageArgs) (any, error) {
	notes, ok := required(args.Notes)
	if !ok {
		return nil, validation("Rejection notes are required")
	}

	stage, req, err := loadPendingStage(ctx, c, args.StageID)
	if err != nil {
		return nil, err
	}

	by, at := c.actorID(), c.now
	stage.Status = string(domain.StageRejected)
	stage.Notes = notes
	stage.DecidedBy = &by
	stage.DecidedAt = &at
	if err := c.tx.Approvals().UpdateStage(ctx, stage); err != nil {
		return nil, err
	}

	req.Status = string(domain.RequestRejected)
	req.CompletedAt = &at
	if err := c.tx.Approvals().UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	if err := onRequestRejected(ctx, c, req); err != nil {
		return nil, err
	}

	c.audit(models.AuditStageReject, models.EntityApprovalRequest, req.ID, map[string]any{
		"stage_id": stage.ID,
		"sequence": stage.Sequence,
		"notes":    notes,
	})
	c.notify(req.RequestedBy, "approval_rejected", "Request rejected",
		fmt.Sprintf("Your %s request #%d was rejected at stage %q: %s", humanize(req.RequestType), req.ID, stage.Name, notes))

	return &StageDecision{
		RequestID:     req.ID,
		StageID:       stage.ID,
		StageStatus:   stage.Status,
		RequestStatus: req.Status,
		CurrentStage:  req.CurrentStage,
	}, nil
}

func (h *Host) cancelApprovalRequest(ctx context.Context, c *call, args requestArgs) (any, error) {
	u, err := c.user(ctx)
	if err != nil {
		return nil, err
	}

	req, err := c.tx.Approvals().GetRequestForUpdate(ctx, args.RequestID)
	if err != nil {
		return nil, lookupErr(err, "Approval request not found")
	}
	if u.ID != req.RequestedBy && !u.RoleSet().Has(domain.RoleAdmin) {
		return nil, unauthorized("Unauthorized: only the requester or an admin can cancel")
	}
	if req.Status != string(domain.RequestInProgress) {
		return nil, conflict(fmt.Sprintf("Approval request already %s", req.Status))
	}

	stages, err := c.tx.Approvals().ListStages(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range stages {
		if s.Status == string(domain.StagePending) {
			s.Status = string(domain.StageSkipped)
			s.Notes = strings.TrimSpace(args.Reason)
			if err := c.tx.Approvals().UpdateStage(ctx, s); err != nil {
				return nil, err
			}
		}
	}

	at := c.now
	req.Status = string(domain.RequestCancelled)
	req.CompletedAt = &at
	if err := c.tx.Approvals().UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	c.audit(models.AuditRequestCancel, models.EntityApprovalRequest, req.ID, map[string]any{
		"reason": strings.TrimSpace(args.Reason),
	})
	return map[string]any{"request_id": req.ID, "status": req.Status}, nil
}

// nextDefinition returns the stage after sequence, nil when it was the last
func nextDefinition(ctx context.Context, c *call, requestType string, sequence int) (*models.ApprovalStageDefinition, error) {
	defs, err := c.tx.Approvals().ListStageDefinitions(ctx, requestType)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.Sequence > sequence {
			return d, nil
		}
	}
	return nil, nil
}

// ============================================================
// Completion hooks
// ============================================================

// onRequestCompleted applies the approved request in the same transaction
func onRequestCompleted(ctx context.Context, c *call, req *models.ApprovalRequest) (*uint, error) {
	switch domain.RequestType(req.RequestType) {
	case domain.RequestLoanApplication:
		loan, err := c.tx.Loans().GetByIDForUpdate(ctx, req.ReferenceID)
		if err != nil {
			return nil, lookupErr(err, "Loan not found")
		}
		if loan.Status != string(domain.LoanPending) {
			return nil, conflict(fmt.Sprintf("Loan is not pending (status: %s)", loan.Status))
		}
		at := c.now
		loan.Status = string(domain.LoanApproved)
		loan.ApprovedAt = &at
		if err := c.tx.Loans().Update(ctx, loan); err != nil {
			return nil, err
		}
		d, err := createDisbursement(ctx, c, loan, fmt.Sprintf("Created on approval of request #%d", req.ID))
		if err != nil {
			return nil, err
		}
		return &d.ID, nil

	case domain.RequestRoleChange:
		var p RoleChangePayload
		if err := json.Unmarshal([]byte(req.Payload), &p); err != nil {
			return nil, fmt.Errorf("request %d payload: %w", req.ID, err)
		}
		if _, err := applyRoleChange(ctx, c, p); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func onRequestRejected(ctx context.Context, c *call, req *models.ApprovalRequest) error {
	if domain.RequestType(req.RequestType) != domain.RequestLoanApplication {
		return nil
	}
	loan, err := c.tx.Loans().GetByIDForUpdate(ctx, req.ReferenceID)
	if err != nil {
		return lookupErr(err, "Loan not found")
	}
	if loan.Status != string(domain.LoanPending) {
		return nil
	}
	loan.Status = string(domain.LoanRejected)
	return c.tx.Loans().Update(ctx, loan)
}

// checkRoleChange validates a role_change payload against the target's current roles
func checkRoleChange(ctx context.Context, c *call, p RoleChangePayload) (*models.User, error) {
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		return nil, validation("Unknown role")
	}
	op, ok := roles.ParseOperation(p.Action)
	if !ok {
		return nil, validation("Unknown role operation")
	}
	target, err := c.tx.Users().GetByID(ctx, p.UserID)
	if err != nil {
		return nil, lookupErr(err, "User not found")
	}
	if d := c.host.validator.Check(target.Email, target.RoleSet(), op, role); !d.Allowed {
		return nil, validation(d.Reason)
	}
	return target, nil
}

func humanize(requestType string) string {
	return strings.ReplaceAll(requestType, "_", " ")
}
