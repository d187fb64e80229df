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

func (f *fixture) submitLoan() envelope {
	return f.must(f.client, rpc.ProcSubmitLoanApplication, rpc.Params{
		"p_amount":      "5000",
		"p_term_months": 12,
		"p_purpose":     "stock for shop",
	})
}

func TestSubmitLoanApplication_StartsWorkflow(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()

	loan := f.getLoan(out.id("loan_id"))
	assert.Equal(t, string(domain.LoanPending), loan.Status)
	assert.Equal(t, "32", loan.InterestRate.String())

	req, err := f.store.Approvals().GetRequest(context.Background(), out.id("request_id"))
	require.NoError(t, err)
	assert.Equal(t, string(domain.RequestInProgress), req.Status)
	assert.Equal(t, 4, req.TotalStages)
	require.Len(t, req.Stages, 1, "only the current stage is instantiated")
	assert.Equal(t, string(domain.StagePending), req.Stages[0].Status)
	assert.Equal(t, "loan_officer", req.Stages[0].AssignedRole)
}

func TestSubmitLoanApplication_Validation(t *testing.T) {
	f := newFixture(t)

	staff := f.exec(f.officer, rpc.ProcSubmitLoanApplication, rpc.Params{"p_amount": "100", "p_term_months": 3})
	assert.Contains(t, staff.err(), "Unauthorized")

	zero := f.exec(f.client, rpc.ProcSubmitLoanApplication, rpc.Params{"p_amount": "0", "p_term_months": 3})
	assert.Contains(t, zero.err(), "greater than 0")

	long := f.exec(f.client, rpc.ProcSubmitLoanApplication, rpc.Params{"p_amount": "100", "p_term_months": 61})
	assert.Equal(t, domain.CodeValidation, long.code())

	usury := f.exec(f.client, rpc.ProcSubmitLoanApplication, rpc.Params{"p_amount": "100", "p_term_months": 3, "p_interest_rate": "40"})
	assert.Contains(t, usury.err(), "Interest rate")
}

func TestWorkflow_RejectAtStageTwoOfFour(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()
	requestID := out.id("request_id")

	first := f.must(f.officer, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": out.id("stage_id"), "p_notes": "ok"})
	secondStage := first.id("next_stage_id")
	require.NotZero(t, secondStage)

	noNotes := f.exec(f.officer, rpc.ProcRejectWorkflowStage, rpc.Params{"p_stage_id": secondStage, "p_notes": "  "})
	assert.Equal(t, "Rejection notes are required", noNotes.err())

	rejected := f.must(f.officer, rpc.ProcRejectWorkflowStage, rpc.Params{"p_stage_id": secondStage, "p_notes": "income not verified"})
	assert.Equal(t, string(domain.RequestRejected), rejected["request_status"])

	req, err := f.store.Approvals().GetRequest(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RequestRejected), req.Status)
	require.Len(t, req.Stages, 2, "stages 3 and 4 are never activated")
	assert.Equal(t, string(domain.StageApproved), req.Stages[0].Status)
	assert.Equal(t, string(domain.StageRejected), req.Stages[1].Status)
	for _, s := range req.Stages {
		assert.NotEqual(t, string(domain.StagePending), s.Status)
	}

	assert.Equal(t, string(domain.LoanRejected), f.getLoan(out.id("loan_id")).Status)

	late := f.exec(f.admin, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": secondStage})
	assert.Equal(t, domain.CodeConflict, late.code())
}

func TestWorkflow_FinalApprovalCompletes(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()
	stageID := out.id("stage_id")

	approvers := []*models.User{f.officer, f.officer, f.admin, f.admin}

	var last envelope
	for i, as := range approvers {
		last = f.must(as, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": stageID})
		if i < len(approvers)-1 {
			stageID = last.id("next_stage_id")
			require.NotZero(t, stageID)
		}
	}

	assert.Equal(t, string(domain.RequestCompleted), last["request_status"])
	require.NotZero(t, last.id("disbursement_id"))

	view := f.must(f.client, rpc.ProcGetApprovalRequest, rpc.Params{"p_request_id": out.id("request_id")})
	assert.Equal(t, float64(100), view["progress_percent"])

	req, err := f.store.Approvals().GetRequest(context.Background(), out.id("request_id"))
	require.NoError(t, err)
	require.Len(t, req.Stages, 4)
	for _, s := range req.Stages {
		assert.Equal(t, string(domain.StageApproved), s.Status)
	}

	loan := f.getLoan(out.id("loan_id"))
	assert.Equal(t, string(domain.LoanApproved), loan.Status)
	d := f.getDisbursement(last.id("disbursement_id"))
	assert.Equal(t, string(domain.DisbursementPending), d.Status)
	assert.Equal(t, loan.ID, d.LoanID)
}

func TestWorkflow_StageRoleIsEnforced(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()

	client := f.exec(f.client, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": out.id("stage_id")})
	assert.Contains(t, client.err(), "Unauthorized")

	// admin subsumes loan_officer
	second := f.must(f.admin, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": out.id("stage_id")})
	f.must(f.officer, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": second.id("next_stage_id")})

	req, err := f.store.Approvals().GetRequest(context.Background(), out.id("request_id"))
	require.NoError(t, err)
	riskStage := req.Stages[2].ID

	officer := f.exec(f.officer, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": riskStage})
	assert.Equal(t, "Unauthorized: stage requires the admin role", officer.err())

	view := f.must(f.officer, rpc.ProcGetApprovalRequest, rpc.Params{"p_request_id": out.id("request_id")})
	assert.Equal(t, float64(50), view["progress_percent"])
}

func TestWorkflow_DuplicateAndCancel(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()
	loanID := out.id("loan_id")

	dup := f.exec(f.officer, rpc.ProcStartApprovalWorkflow, rpc.Params{"p_request_type": "loan_application", "p_reference_id": loanID})
	assert.Contains(t, dup.err(), "already in progress")

	other := f.exec(f.newbie, rpc.ProcCancelApprovalRequest, rpc.Params{"p_request_id": out.id("request_id")})
	assert.Contains(t, other.err(), "Unauthorized")

	f.must(f.client, rpc.ProcCancelApprovalRequest, rpc.Params{"p_request_id": out.id("request_id"), "p_reason": "no longer needed"})

	stage := f.must(f.client, rpc.ProcGetStageExecution, rpc.Params{"p_stage_id": out.id("stage_id")})
	assert.Equal(t, string(domain.RequestCancelled), stage["request_status"])
	assert.Equal(t, string(domain.StageSkipped), stage["stage"].(map[string]any)["status"])

	restart := f.must(f.client, rpc.ProcStartApprovalWorkflow, rpc.Params{"p_request_type": "loan_application", "p_reference_id": loanID})
	assert.NotEqual(t, out.id("request_id"), restart.id("request_id"))
}

func TestWorkflow_RoleChangeRequest(t *testing.T) {
	f := newFixture(t)

	illegal := f.exec(f.admin, rpc.ProcStartApprovalWorkflow, rpc.Params{
		"p_request_type": "role_change",
		"p_payload":      map[string]any{"user_id": f.client.ID, "role": "admin", "action": "add"},
	})
	assert.Equal(t, domain.CodeValidation, illegal.code())
	assert.Contains(t, illegal.err(), "Client role is exclusive")

	started := f.must(f.admin, rpc.ProcStartApprovalWorkflow, rpc.Params{
		"p_request_type": "role_change",
		"p_payload":      map[string]any{"user_id": f.newbie.ID, "role": "loan_officer", "action": "add"},
	})
	assert.Equal(t, float64(1), started["total_stages"])

	f.must(f.admin, rpc.ProcApproveWorkflowStage, rpc.Params{"p_stage_id": started.id("stage_id")})

	set, err := f.store.Users().GetRoles(context.Background(), f.newbie.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewRoleSet(domain.RoleLoanOfficer), set)
}

func TestWorkflow_UnknownType(t *testing.T) {
	f := newFixture(t)
	out := f.exec(f.admin, rpc.ProcStartApprovalWorkflow, rpc.Params{"p_request_type": "overdraft"})
	assert.Equal(t, "Unknown request type", out.err())
}

func TestWorkflow_SideEffectsRunAfterCommit(t *testing.T) {
	f := newFixture(t)
	out := f.submitLoan()
	f.must(f.officer, rpc.ProcRejectWorkflowStage, rpc.Params{"p_stage_id": out.id("stage_id"), "p_notes": "incomplete"})

	notes, err := f.store.Notifications().ListByUser(context.Background(), f.client.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	assert.Equal(t, "approval_rejected", notes[0].Type)
	assert.Contains(t, notes[0].Message, "incomplete")
}
