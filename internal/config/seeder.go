package config

import (
	"context"
	"errors"
	"fmt"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/password"

	"go.uber.org/zap"
)

// StageSeed is one approval stage of the master data
type StageSeed struct {
	Name string
	Role domain.Role
}

// DefaultStages are the approval stages per request type
var DefaultStages = map[domain.RequestType][]StageSeed{
	domain.RequestLoanApplication: {
		{"Document review", domain.RoleLoanOfficer},
		{"Credit assessment", domain.RoleLoanOfficer},
		{"Risk review", domain.RoleAdmin},
		{"Final approval", domain.RoleAdmin},
	},
	domain.RequestRoleChange: {
		{"Administrator review", domain.RoleAdmin},
	},
}

// Seeder handles database seeding
type Seeder struct {
	store repositories.Store
	log   *zap.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(store repositories.Store, log *zap.Logger) *Seeder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Seeder{store: store, log: log.Named("seeder")}
}

// Run executes all seeders. adminEmail may be empty.
func (s *Seeder) Run(ctx context.Context, adminEmail, adminPassword string) error {
	s.log.Info("🌱 Running database seeders...")

	if err := s.seedStages(ctx); err != nil {
		return fmt.Errorf("seed stages: %w", err)
	}
	if adminEmail != "" {
		if err := s.seedAdminUser(ctx, adminEmail, adminPassword); err != nil {
			s.log.Warn("⚠️ Admin seeder skipped", zap.Error(err))
		}
	}

	s.log.Info("✅ Database seeding completed")
	return nil
}

// seedStages writes the stage definitions of request types that have none
func (s *Seeder) seedStages(ctx context.Context) error {
	return s.store.Transaction(ctx, func(tx repositories.Store) error {
		for _, rt := range []domain.RequestType{domain.RequestLoanApplication, domain.RequestRoleChange} {
			existing, err := tx.Approvals().ListStageDefinitions(ctx, string(rt))
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				continue
			}
			for i, st := range DefaultStages[rt] {
				def := &models.ApprovalStageDefinition{
					RequestType: string(rt),
					Sequence:    i + 1,
					Name:        st.Name,
					Role:        st.Role.String(),
					IsActive:    true,
				}
				if err := tx.Approvals().CreateStageDefinition(ctx, def); err != nil {
					return err
				}
			}
			s.log.Info("✅ Stage definitions seeded", zap.String("request_type", string(rt)), zap.Int("stages", len(DefaultStages[rt])))
		}
		return nil
	})
}

// seedAdminUser creates the super-admin account on first start.
// In production, rotate the password right after.
func (s *Seeder) seedAdminUser(ctx context.Context, email, plain string) error {
	_, err := s.store.Users().GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	if !password.ValidatePassword(plain) {
		return errors.New("SUPER_ADMIN_PASSWORD must be at least 8 characters")
	}

	hashed, err := password.Hash(plain)
	if err != nil {
		return err
	}
	admin := &models.User{
		Email:    email,
		FullName: "Administrator",
		Password: hashed,
		IsActive: true,
		Roles:    []models.UserRole{{Role: domain.RoleAdmin.String()}},
	}
	if err := s.store.Users().Create(ctx, admin); err != nil {
		return err
	}

	s.log.Info("✅ Admin user created", zap.String("email", admin.Email))
	return nil
}
