package repositories

import (
	"context"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/core/domain"

	"gorm.io/gorm"
)

// ErrNotFound is returned by every lookup that matches no row
var ErrNotFound = gorm.ErrRecordNotFound

// Store groups the repositories the procedure host runs against.
// Transaction hands fn a Store bound to one all-or-nothing unit of work.
type Store interface {
	Users() UserRepository
	Loans() LoanRepository
	Disbursements() DisbursementRepository
	Approvals() ApprovalRepository
	Schedules() ScheduleRepository
	Payments() PaymentRepository
	LateFees() LateFeeRepository
	Audit() AuditRepository
	Notifications() NotificationRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// UserRepository defines user and role repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetRoles(ctx context.Context, userID uint) (domain.RoleSet, error)
	AddRole(ctx context.Context, userID uint, role domain.Role, grantedBy uint) error
	RemoveRole(ctx context.Context, userID uint, role domain.Role) error
	ReplaceRoles(ctx context.Context, userID uint, roles domain.RoleSet, grantedBy uint) error
}

// LoanRepository defines loan repository interface
type LoanRepository interface {
	Create(ctx context.Context, loan *models.Loan) error
	GetByID(ctx context.Context, id uint) (*models.Loan, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error)
	Update(ctx context.Context, loan *models.Loan) error
}

// DisbursementRepository defines disbursement repository interface
type DisbursementRepository interface {
	Create(ctx context.Context, d *models.Disbursement) error
	GetByID(ctx context.Context, id uint) (*models.Disbursement, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Disbursement, error)
	FindActiveByLoan(ctx context.Context, loanID uint) (*models.Disbursement, error)
	Update(ctx context.Context, d *models.Disbursement) error
	ListByStatus(ctx context.Context, statuses []string, offset, limit int) ([]*models.Disbursement, int64, error)
}

// ApprovalRepository defines approval workflow repository interface
type ApprovalRepository interface {
	CreateStageDefinition(ctx context.Context, def *models.ApprovalStageDefinition) error
	ListStageDefinitions(ctx context.Context, requestType string) ([]*models.ApprovalStageDefinition, error)
	CreateRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetRequest(ctx context.Context, id uint) (*models.ApprovalRequest, error)
	GetRequestForUpdate(ctx context.Context, id uint) (*models.ApprovalRequest, error)
	FindOpenRequest(ctx context.Context, requestType string, referenceID uint) (*models.ApprovalRequest, error)
	UpdateRequest(ctx context.Context, req *models.ApprovalRequest) error
	CreateStage(ctx context.Context, stage *models.StageExecution) error
	GetStage(ctx context.Context, id uint) (*models.StageExecution, error)
	GetStageForUpdate(ctx context.Context, id uint) (*models.StageExecution, error)
	UpdateStage(ctx context.Context, stage *models.StageExecution) error
	ListStages(ctx context.Context, requestID uint) ([]*models.StageExecution, error)
}

// ScheduleRepository defines payment schedule repository interface
type ScheduleRepository interface {
	CountByLoan(ctx context.Context, loanID uint) (int64, error)
	CreateBatch(ctx context.Context, entries []*models.ScheduleEntry) error
	ListByLoan(ctx context.Context, loanID uint) ([]*models.ScheduleEntry, error)
	ListByLoanForUpdate(ctx context.Context, loanID uint) ([]*models.ScheduleEntry, error)
	GetByID(ctx context.Context, id uint) (*models.ScheduleEntry, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.ScheduleEntry, error)
	ListDueBefore(ctx context.Context, cutoff time.Time, statuses []string) ([]*models.ScheduleEntry, error)
	Update(ctx context.Context, entry *models.ScheduleEntry) error
}

// PaymentRepository defines payment repository interface
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id uint) (*models.Payment, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
}

// LateFeeRepository defines late fee repository interface
type LateFeeRepository interface {
	Create(ctx context.Context, fee *models.LateFee) error
	GetByIDForUpdate(ctx context.Context, id uint) (*models.LateFee, error)
	ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.LateFee, error)
	Update(ctx context.Context, fee *models.LateFee) error
}

// AuditRepository defines the append-only audit trail
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID uint) ([]*models.AuditLog, error)
}

// NotificationRepository defines notification repository interface
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID uint, limit int) ([]*models.Notification, error)
}
