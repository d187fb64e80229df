package rpc

// Procedure names
const (
	// Disbursement lifecycle
	ProcCreateDisbursementOnApproval = "create_disbursement_on_approval"
	ProcApproveDisbursement          = "approve_disbursement"
	ProcMarkDisbursementProcessing   = "mark_disbursement_processing"
	ProcCompleteDisbursement         = "complete_disbursement"
	ProcFailDisbursement             = "fail_disbursement"
	ProcGetPendingDisbursements      = "get_pending_disbursements"

	// Schedule ledger
	ProcGeneratePaymentSchedule = "generate_payment_schedule"
	ProcGetPaymentSchedule      = "get_payment_schedule"
	ProcRecordPayment           = "record_payment"
	ProcApplyPaymentToSchedule  = "apply_payment_to_schedule"
	ProcMarkOverduePayments     = "mark_overdue_payments"
	ProcCalculateLateFee        = "calculate_late_fee"
	ProcApplyLateFee            = "apply_late_fee"
	ProcWaiveLateFee            = "waive_late_fee"

	// Role management
	ProcAssignUserRole        = "assign_user_role_with_validation"
	ProcRemoveUserRole        = "remove_user_role"
	ProcSetUserRoles          = "set_user_roles"
	ProcGetUserRoles          = "get_user_roles"
	ProcValidateRoleHierarchy = "validate_role_hierarchy"

	// Approval workflow
	ProcSubmitLoanApplication = "submit_loan_application"
	ProcStartApprovalWorkflow = "start_approval_workflow"
	ProcGetApprovalRequest    = "get_approval_request"
	ProcGetStageExecution     = "get_stage_execution"
	ProcApproveWorkflowStage  = "approve_workflow_stage"
	ProcRejectWorkflowStage   = "reject_workflow_stage"
	ProcCancelApprovalRequest = "cancel_approval_request"
)

// insertsEveryCall lists procedures that create a new row on each invocation
// with no status precondition to stop a replay.
var insertsEveryCall = map[string]bool{
	ProcRecordPayment:         true,
	ProcSubmitLoanApplication: true,
}

// Idempotent reports whether a call to procedure may be replayed after an
// attempt whose outcome is unknown.
func Idempotent(procedure string) bool {
	return !insertsEveryCall[procedure]
}
