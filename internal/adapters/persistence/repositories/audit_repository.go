package repositories

import (
	"context"

	"namlend/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// auditRepository handles audit trail data access
type auditRepository struct {
	db *gorm.DB
}

// Append writes one audit row
func (r *auditRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByEntity gets the history of one entity, newest first
func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]*models.AuditLog, error) {
	var entries []*models.AuditLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

// notificationRepository handles notification data access
type notificationRepository struct {
	db *gorm.DB
}

// Create creates a notification
func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListByUser lists the latest notifications of a user
func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]*models.Notification, error) {
	var items []*models.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
