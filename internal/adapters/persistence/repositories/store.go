package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormStore implements Store on top of a *gorm.DB (or an open transaction)
type gormStore struct {
	db *gorm.DB
}

// NewStore creates a GORM-backed store
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository                 { return &userRepository{db: s.db} }
func (s *gormStore) Loans() LoanRepository                 { return &loanRepository{db: s.db} }
func (s *gormStore) Disbursements() DisbursementRepository { return &disbursementRepository{db: s.db} }
func (s *gormStore) Approvals() ApprovalRepository         { return &approvalRepository{db: s.db} }
func (s *gormStore) Schedules() ScheduleRepository         { return &scheduleRepository{db: s.db} }
func (s *gormStore) Payments() PaymentRepository           { return &paymentRepository{db: s.db} }
func (s *gormStore) LateFees() LateFeeRepository           { return &lateFeeRepository{db: s.db} }
func (s *gormStore) Audit() AuditRepository                { return &auditRepository{db: s.db} }
func (s *gormStore) Notifications() NotificationRepository { return &notificationRepository{db: s.db} }

// Transaction runs fn inside a database transaction
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// forUpdate adds SELECT ... FOR UPDATE
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
