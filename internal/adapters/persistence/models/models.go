package models

import (
	"time"

	"namlend/internal/core/domain"
	"namlend/internal/core/ledger"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ============================================================
// Users & Roles
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	FullName  string         `gorm:"size:150" json:"full_name"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Roles []UserRole `gorm:"foreignKey:UserID" json:"roles,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// RoleSet folds the role rows into a set, skipping unknown names
func (u *User) RoleSet() domain.RoleSet {
	var set domain.RoleSet
	for _, r := range u.Roles {
		if role, err := domain.ParseRole(r.Role); err == nil {
			set = set.With(role)
		}
	}
	return set
}

// UserResponse DTO
type UserResponse struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Roles     []string  `json:"roles"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Roles:     u.RoleSet().Strings(),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// UserRole represents user_roles table (one row per held role)
type UserRole struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_user_role;not null" json:"user_id"`
	Role      string    `gorm:"uniqueIndex:idx_user_role;size:20;not null" json:"role"`
	GrantedBy *uint     `json:"granted_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// ============================================================
// Loans & Disbursements
// ============================================================

// Loan represents loans table
type Loan struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	BorrowerID   uint            `gorm:"not null;index" json:"borrower_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	TermMonths   int             `gorm:"not null" json:"term_months"`
	InterestRate decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"interest_rate"`
	Purpose      string          `gorm:"type:text" json:"purpose"`
	Status       string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ApprovedAt   *time.Time      `json:"approved_at"`
	DisbursedAt  *time.Time      `json:"disbursed_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string {
	return "loans"
}

// Disbursement represents disbursements table
type Disbursement struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	LoanID           uint            `gorm:"not null;index" json:"loan_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status           string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Method           string          `gorm:"size:30" json:"method"`
	ReferenceCode    string          `gorm:"size:50;uniqueIndex;not null" json:"reference_code"`
	PaymentReference *string         `gorm:"size:100" json:"payment_reference"`
	ProcessingNotes  string          `gorm:"type:text" json:"processing_notes"`
	FailureReason    string          `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedBy        uint            `gorm:"not null" json:"created_by"`
	ApprovedBy       *uint           `json:"approved_by"`
	ProcessedBy      *uint           `json:"processed_by"`
	ApprovedAt       *time.Time      `json:"approved_at"`
	ProcessedAt      *time.Time      `json:"processed_at"`
	CompletedAt      *time.Time      `json:"completed_at"`
	FailedAt         *time.Time      `json:"failed_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Disbursement) TableName() string {
	return "disbursements"
}

// ============================================================
// Approval Workflow
// ============================================================

// ApprovalStageDefinition is the master list of stages per request type
type ApprovalStageDefinition struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RequestType string    `gorm:"size:30;uniqueIndex:idx_stage_def;not null" json:"request_type"`
	Sequence    int       `gorm:"uniqueIndex:idx_stage_def;not null" json:"sequence"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Role        string    `gorm:"size:20;not null" json:"role"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ApprovalStageDefinition) TableName() string {
	return "approval_stage_definitions"
}

// ApprovalRequest represents approval_requests table
type ApprovalRequest struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RequestType  string     `gorm:"size:30;not null;index" json:"request_type"`
	ReferenceID  uint       `gorm:"not null;index" json:"reference_id"`
	RequestedBy  uint       `gorm:"not null" json:"requested_by"`
	Status       string     `gorm:"size:20;not null;default:'in_progress';index" json:"status"`
	CurrentStage int        `gorm:"not null" json:"current_stage"`
	TotalStages  int        `gorm:"not null" json:"total_stages"`
	Payload      string     `gorm:"type:text" json:"payload,omitempty"`
	CompletedAt  *time.Time `json:"completed_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Stages []StageExecution `gorm:"foreignKey:RequestID" json:"stages,omitempty"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// StageExecution represents stage_executions table
type StageExecution struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RequestID    uint       `gorm:"not null;index" json:"request_id"`
	Sequence     int        `gorm:"not null" json:"sequence"`
	Name         string     `gorm:"size:100;not null" json:"name"`
	AssignedRole string     `gorm:"size:20;not null" json:"assigned_role"`
	Status       string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	Notes        string     `gorm:"type:text" json:"notes"`
	DecidedBy    *uint      `json:"decided_by"`
	DecidedAt    *time.Time `json:"decided_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StageExecution) TableName() string {
	return "stage_executions"
}

// ============================================================
// Payment Schedule Ledger
// ============================================================

// ScheduleEntry represents payment_schedules table (one installment)
type ScheduleEntry struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	LoanID            uint            `gorm:"not null;uniqueIndex:idx_loan_installment" json:"loan_id"`
	InstallmentNumber int             `gorm:"not null;uniqueIndex:idx_loan_installment" json:"installment_number"`
	DueDate           time.Time       `gorm:"type:date;not null;index" json:"due_date"`
	PrincipalAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"principal_amount"`
	InterestAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"interest_amount"`
	FeeAmount         decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"fee_amount"`
	LateFee           decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"late_fee"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total_amount"`
	AmountPaid        decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"amount_paid"`
	Status            string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaidAt            *time.Time      `json:"paid_at"`
	DaysOverdue       int             `gorm:"default:0" json:"days_overdue"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ScheduleEntry) TableName() string {
	return "payment_schedules"
}

// Balance is total_amount - amount_paid, never negative
func (e *ScheduleEntry) Balance() decimal.Decimal {
	return ledger.Balance(e.TotalAmount, e.AmountPaid)
}

// LedgerEntry converts the row into the allocation view
func (e *ScheduleEntry) LedgerEntry() ledger.Entry {
	return ledger.Entry{
		ID:      e.ID,
		Number:  e.InstallmentNumber,
		DueDate: e.DueDate,
		Total:   e.TotalAmount,
		Paid:    e.AmountPaid,
		Status:  domain.InstallmentStatus(e.Status),
	}
}

// ScheduleEntryResponse DTO
type ScheduleEntryResponse struct {
	ID                uint            `json:"id"`
	LoanID            uint            `json:"loan_id"`
	InstallmentNumber int             `json:"installment_number"`
	DueDate           time.Time       `json:"due_date"`
	PrincipalAmount   decimal.Decimal `json:"principal_amount"`
	InterestAmount    decimal.Decimal `json:"interest_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	LateFee           decimal.Decimal `json:"late_fee"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	Balance           decimal.Decimal `json:"balance"`
	Status            string          `json:"status"`
	PaidAt            *time.Time      `json:"paid_at"`
	DaysOverdue       int             `json:"days_overdue"`
}

func (e *ScheduleEntry) ToResponse() *ScheduleEntryResponse {
	return &ScheduleEntryResponse{
		ID:                e.ID,
		LoanID:            e.LoanID,
		InstallmentNumber: e.InstallmentNumber,
		DueDate:           e.DueDate,
		PrincipalAmount:   e.PrincipalAmount,
		InterestAmount:    e.InterestAmount,
		FeeAmount:         e.FeeAmount,
		LateFee:           e.LateFee,
		TotalAmount:       e.TotalAmount,
		AmountPaid:        e.AmountPaid,
		Balance:           e.Balance(),
		Status:            e.Status,
		PaidAt:            e.PaidAt,
		DaysOverdue:       e.DaysOverdue,
	}
}

// Payment represents payments table (money-in events)
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	LoanID          uint            `gorm:"not null;index" json:"loan_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Method          string          `gorm:"size:30;not null" json:"method"`
	Reference       string          `gorm:"size:100" json:"reference"`
	Status          string          `gorm:"size:20;not null;default:'pending'" json:"status"`
	AppliedAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"applied_amount"`
	UnappliedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"unapplied_amount"`
	AppliedAt       *time.Time      `json:"applied_at"`
	RecordedBy      uint            `gorm:"not null" json:"recorded_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// LateFee represents late_fees table
type LateFee struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ScheduleID   uint            `gorm:"not null;index" json:"schedule_id"`
	LoanID       uint            `gorm:"not null;index" json:"loan_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	DaysOverdue  int             `gorm:"not null" json:"days_overdue"`
	Status       string          `gorm:"size:20;not null;default:'applied'" json:"status"`
	WaivedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"waived_amount"`
	Reason       string          `gorm:"type:text" json:"reason,omitempty"`
	CreatedBy    uint            `gorm:"not null" json:"created_by"`
	WaivedBy     *uint           `json:"waived_by"`
	WaivedAt     *time.Time      `json:"waived_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (LateFee) TableName() string {
	return "late_fees"
}

// ============================================================
// Audit & Notifications
// ============================================================

// AuditLog represents audit_logs table (append only)
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ActorID    uint      `gorm:"not null;index" json:"actor_id"`
	Action     string    `gorm:"size:50;not null" json:"action"`
	EntityType string    `gorm:"size:30;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uint      `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Metadata   string    `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Audit actions
const (
	AuditDisbursementCreate     = "disbursement_created"
	AuditDisbursementApprove    = "disbursement_approved"
	AuditDisbursementProcessing = "disbursement_processing"
	AuditDisbursementComplete   = "disbursement_completed"
	AuditDisbursementFail       = "disbursement_failed"
	AuditStageApprove           = "stage_approved"
	AuditStageReject            = "stage_rejected"
	AuditRequestStart           = "approval_started"
	AuditRequestCancel          = "approval_cancelled"
	AuditScheduleGenerate       = "schedule_generated"
	AuditPaymentRecord          = "payment_recorded"
	AuditPaymentApply           = "payment_applied"
	AuditOverdueMark            = "overdue_marked"
	AuditLateFeeApply           = "late_fee_applied"
	AuditLateFeeWaive           = "late_fee_waived"
	AuditRoleAssign             = "role_assigned"
	AuditRoleRemove             = "role_removed"
	AuditRoleSet                = "roles_set"
	AuditLoanSubmit             = "loan_submitted"
)

// Audit entity types
const (
	EntityDisbursement    = "disbursement"
	EntityApprovalRequest = "approval_request"
	EntityLoan            = "loan"
	EntityPayment         = "payment"
	EntityScheduleEntry   = "payment_schedule"
	EntityLateFee         = "late_fee"
	EntityUser            = "user"
)

// Notification represents notifications table
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Type      string    `gorm:"size:50;not null" json:"type"`
	Title     string    `gorm:"size:200;not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&UserRole{},
		&Loan{},
		&Disbursement{},
		&ApprovalStageDefinition{},
		&ApprovalRequest{},
		&StageExecution{},
		&ScheduleEntry{},
		&Payment{},
		&LateFee{},
		&AuditLog{},
		&Notification{},
	)
}
