package repositories

import (
	"context"

	"namlend/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// approvalRepository handles approval workflow data access
type approvalRepository struct {
	db *gorm.DB
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

// CreateStageDefinition creates a stage definition (master)
func (r *approvalRepository) CreateStageDefinition(ctx context.Context, def *models.ApprovalStageDefinition) error {
	return r.db.WithContext(ctx).Create(def).Error
}

// ListStageDefinitions lists the active stages of a request type in order
func (r *approvalRepository) ListStageDefinitions(ctx context.Context, requestType string) ([]*models.ApprovalStageDefinition, error) {
	var defs []*models.ApprovalStageDefinition
	err := r.db.WithContext(ctx).
		Where("request_type = ? AND is_active = ?", requestType, true).
		Order("sequence ASC").
		Find(&defs).Error
	return defs, err
}

// CreateRequest creates an approval request
func (r *approvalRepository) CreateRequest(ctx context.Context, req *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Omit("Stages").Create(req).Error
}

// GetRequest gets a request with its instantiated stages
func (r *approvalRepository) GetRequest(ctx context.Context, id uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		First(&req, id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequestForUpdate gets a request and locks the row
func (r *approvalRepository) GetRequestForUpdate(ctx context.Context, id uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	if err := forUpdate(r.db.WithContext(ctx)).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// FindOpenRequest returns the in-progress request for a reference
func (r *approvalRepository) FindOpenRequest(ctx context.Context, requestType string, referenceID uint) (*models.ApprovalRequest, error) {
	var req models.ApprovalRequest
	err := r.db.WithContext(ctx).
		Where("request_type = ? AND reference_id = ? AND status = ?", requestType, referenceID, "in_progress").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateRequest updates a request
func (r *approvalRepository) UpdateRequest(ctx context.Context, req *models.ApprovalRequest) error {
	return r.db.WithContext(ctx).Omit("Stages").Save(req).Error
}

// CreateStage creates a stage execution
func (r *approvalRepository) CreateStage(ctx context.Context, stage *models.StageExecution) error {
	return r.db.WithContext(ctx).Create(stage).Error
}

// GetStage gets a stage execution by ID
func (r *approvalRepository) GetStage(ctx context.Context, id uint) (*models.StageExecution, error) {
	var stage models.StageExecution
	if err := r.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

// GetStageForUpdate gets a stage execution and locks the row
func (r *approvalRepository) GetStageForUpdate(ctx context.Context, id uint) (*models.StageExecution, error) {
	var stage models.StageExecution
	if err := forUpdate(r.db.WithContext(ctx)).First(&stage, id).Error; err != nil {
		return nil, err
	}
	return &stage, nil
}

// UpdateStage updates a stage execution
func (r *approvalRepository) UpdateStage(ctx context.Context, stage *models.StageExecution) error {
	return r.db.WithContext(ctx).Save(stage).Error
}

// ListStages lists the instantiated stages of a request in order
func (r *approvalRepository) ListStages(ctx context.Context, requestID uint) ([]*models.StageExecution, error) {
	var stages []*models.StageExecution
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("sequence ASC").
		Find(&stages).Error
	return stages, err
}
