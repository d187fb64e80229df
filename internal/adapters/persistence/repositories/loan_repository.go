package repositories

import (
	"context"

	"namlend/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// loanRepository handles loan data access
type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

// Create creates a new loan
func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

// GetByID gets a loan by ID
func (r *loanRepository) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := r.db.WithContext(ctx).First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetByIDForUpdate gets a loan by ID and locks the row
func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := forUpdate(r.db.WithContext(ctx)).First(&loan, id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

// Update updates a loan
func (r *loanRepository) Update(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Save(loan).Error
}

// disbursementRepository handles disbursement data access
type disbursementRepository struct {
	db *gorm.DB
}

// NewDisbursementRepository creates a new disbursement repository
func NewDisbursementRepository(db *gorm.DB) DisbursementRepository {
	return &disbursementRepository{db: db}
}

// Create creates a new disbursement
func (r *disbursementRepository) Create(ctx context.Context, d *models.Disbursement) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// GetByID gets a disbursement by ID
func (r *disbursementRepository) GetByID(ctx context.Context, id uint) (*models.Disbursement, error) {
	var d models.Disbursement
	if err := r.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// GetByIDForUpdate gets a disbursement by ID and locks the row
func (r *disbursementRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Disbursement, error) {
	var d models.Disbursement
	if err := forUpdate(r.db.WithContext(ctx)).First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// FindActiveByLoan returns the loan's disbursement that has not failed
func (r *disbursementRepository) FindActiveByLoan(ctx context.Context, loanID uint) (*models.Disbursement, error) {
	var d models.Disbursement
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND status <> ?", loanID, "failed").
		Order("created_at DESC").
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Update updates a disbursement
func (r *disbursementRepository) Update(ctx context.Context, d *models.Disbursement) error {
	return r.db.WithContext(ctx).Save(d).Error
}

// ListByStatus lists disbursements in the given statuses, oldest first
func (r *disbursementRepository) ListByStatus(ctx context.Context, statuses []string, offset, limit int) ([]*models.Disbursement, int64, error) {
	var items []*models.Disbursement
	var total int64

	q := r.db.WithContext(ctx).Model(&models.Disbursement{}).Where("status IN ?", statuses)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error

	return items, total, err
}
