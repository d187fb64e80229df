package repositories

import (
	"context"
	"time"

	"namlend/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// scheduleRepository handles payment schedule data access
type scheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a new schedule repository
func NewScheduleRepository(db *gorm.DB) ScheduleRepository {
	return &scheduleRepository{db: db}
}

// CountByLoan counts the installments of a loan
func (r *scheduleRepository) CountByLoan(ctx context.Context, loanID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ScheduleEntry{}).Where("loan_id = ?", loanID).Count(&count).Error
	return count, err
}

// CreateBatch inserts a whole schedule
func (r *scheduleRepository) CreateBatch(ctx context.Context, entries []*models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

// ListByLoan lists installments in due-date order
func (r *scheduleRepository) ListByLoan(ctx context.Context, loanID uint) ([]*models.ScheduleEntry, error) {
	var entries []*models.ScheduleEntry
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("due_date ASC, installment_number ASC").
		Find(&entries).Error
	return entries, err
}

// ListByLoanForUpdate lists installments in due-date order and locks them
func (r *scheduleRepository) ListByLoanForUpdate(ctx context.Context, loanID uint) ([]*models.ScheduleEntry, error) {
	var entries []*models.ScheduleEntry
	err := forUpdate(r.db.WithContext(ctx)).
		Where("loan_id = ?", loanID).
		Order("due_date ASC, installment_number ASC").
		Find(&entries).Error
	return entries, err
}

// GetByID gets an installment by ID
func (r *scheduleRepository) GetByID(ctx context.Context, id uint) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetByIDForUpdate gets an installment and locks the row
func (r *scheduleRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry
	if err := forUpdate(r.db.WithContext(ctx)).First(&entry, id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListDueBefore lists installments in the given statuses due before cutoff
func (r *scheduleRepository) ListDueBefore(ctx context.Context, cutoff time.Time, statuses []string) ([]*models.ScheduleEntry, error) {
	var entries []*models.ScheduleEntry
	err := forUpdate(r.db.WithContext(ctx)).
		Where("due_date < ? AND status IN ?", cutoff, statuses).
		Order("due_date ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// Update updates an installment
func (r *scheduleRepository) Update(ctx context.Context, entry *models.ScheduleEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

// paymentRepository handles payment data access
type paymentRepository struct {
	db *gorm.DB
}

// Create creates a payment
func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID gets a payment by ID
func (r *paymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDForUpdate gets a payment and locks the row
func (r *paymentRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	if err := forUpdate(r.db.WithContext(ctx)).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Update updates a payment
func (r *paymentRepository) Update(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// lateFeeRepository handles late fee data access
type lateFeeRepository struct {
	db *gorm.DB
}

// Create creates a late fee
func (r *lateFeeRepository) Create(ctx context.Context, fee *models.LateFee) error {
	return r.db.WithContext(ctx).Create(fee).Error
}

// GetByIDForUpdate gets a late fee and locks the row
func (r *lateFeeRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.LateFee, error) {
	var fee models.LateFee
	if err := forUpdate(r.db.WithContext(ctx)).First(&fee, id).Error; err != nil {
		return nil, err
	}
	return &fee, nil
}

// ListBySchedule lists fees charged on one installment
func (r *lateFeeRepository) ListBySchedule(ctx context.Context, scheduleID uint) ([]*models.LateFee, error) {
	var fees []*models.LateFee
	err := r.db.WithContext(ctx).Where("schedule_id = ?", scheduleID).Order("created_at ASC").Find(&fees).Error
	return fees, err
}

// Update updates a late fee
func (r *lateFeeRepository) Update(ctx context.Context, fee *models.LateFee) error {
	return r.db.WithContext(ctx).Save(fee).Error
}
