package repositories

import (
	"context"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/core/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user together with any role rows it carries
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID gets a user by ID with roles
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Roles").Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail gets a user by email with roles
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetRoles returns the role set of a user
func (r *userRepository) GetRoles(ctx context.Context, userID uint) (domain.RoleSet, error) {
	var rows []models.UserRole
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return 0, err
	}
	u := models.User{Roles: rows}
	return u.RoleSet(), nil
}

// AddRole inserts one role row; adding a held role is a no-op
func (r *userRepository) AddRole(ctx context.Context, userID uint, role domain.Role, grantedBy uint) error {
	row := &models.UserRole{UserID: userID, Role: role.String(), GrantedBy: &grantedBy}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error
}

// RemoveRole deletes one role row
func (r *userRepository) RemoveRole(ctx context.Context, userID uint, role domain.Role) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role.String()).
		Delete(&models.UserRole{}).Error
}

// ReplaceRoles swaps the full role set of a user
func (r *userRepository) ReplaceRoles(ctx context.Context, userID uint, roles domain.RoleSet, grantedBy uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&models.UserRole{}).Error; err != nil {
		return err
	}
	for _, role := range roles.Roles() {
		row := &models.UserRole{UserID: userID, Role: role.String(), GrantedBy: &grantedBy}
		if err := db.Create(row).Error; err != nil {
			return err
		}
	}
	return nil
}
