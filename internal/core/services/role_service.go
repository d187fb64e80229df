package services

import (
	"context"
	"strings"

	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/roles"

	"go.uber.org/zap"
)

// RoleService manages user roles through the gateway
type RoleService struct {
	gw        Gateway
	validator *roles.Validator
	log       *zap.Logger
}

// NewRoleService creates a new role service
func NewRoleService(gw Gateway, validator *roles.Validator, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{gw: gw, validator: validator, log: log.Named("roles")}
}

// Options returns what may be added to or removed from a role set, without
// a round-trip
func (s *RoleService) Options(identity string, current domain.RoleSet) roles.Options {
	return s.validator.Options(identity, current)
}

// Get returns a user's roles and the mutations allowed from them
func (s *RoleService) Get(ctx context.Context, actor Actor, userID uint) (Result[procedures.UserRoles], error) {
	return invoke[procedures.UserRoles](ctx, s.gw, actor, rpc.ProcGetUserRoles, rpc.Params{"p_user_id": userID})
}

// Validate asks whether op on role would be allowed for the user
func (s *RoleService) Validate(ctx context.Context, actor Actor, userID uint, role, op string) (Result[roles.Decision], error) {
	return invoke[roles.Decision](ctx, s.gw, actor, rpc.ProcValidateRoleHierarchy, rpc.Params{
		"p_user_id":   userID,
		"p_role":      strings.TrimSpace(role),
		"p_operation": strings.TrimSpace(op),
	})
}

// Assign grants one role
func (s *RoleService) Assign(ctx context.Context, actor Actor, userID uint, role, reason string) (Result[procedures.UserRoles], error) {
	return s.change(ctx, actor, rpc.ProcAssignUserRole, userID, role, reason)
}

// Remove revokes one role
func (s *RoleService) Remove(ctx context.Context, actor Actor, userID uint, role, reason string) (Result[procedures.UserRoles], error) {
	return s.change(ctx, actor, rpc.ProcRemoveUserRole, userID, role, reason)
}

func (s *RoleService) change(ctx context.Context, actor Actor, procedure string, userID uint, role, reason string) (Result[procedures.UserRoles], error) {
	if fail, ok := s.adminOnly(actor); !ok {
		return fail, nil
	}
	r, err := domain.ParseRole(role)
	if err != nil {
		return Failed[procedures.UserRoles](domain.CodeValidation, "Unknown role"), nil
	}

	res, err := invoke[procedures.UserRoles](ctx, s.gw, actor, procedure, rpc.Params{
		"p_user_id": userID,
		"p_role":    r.String(),
		"p_reason":  strings.TrimSpace(reason),
	})
	if err == nil && res.Success {
		s.log.Info("role changed",
			zap.String("procedure", procedure),
			zap.Uint("user_id", userID),
			zap.Stringer("role", r),
			zap.Uint("actor_id", actor.UserID))
	}
	return res, err
}

// Set replaces a user's roles with a legal combination
func (s *RoleService) Set(ctx context.Context, actor Actor, userID uint, names []string, reason string) (Result[procedures.UserRoles], error) {
	if fail, ok := s.adminOnly(actor); !ok {
		return fail, nil
	}
	set, err := domain.ParseRoleSet(names)
	if err != nil {
		return Failed[procedures.UserRoles](domain.CodeValidation, "Unknown role"), nil
	}

	res, err := invoke[procedures.UserRoles](ctx, s.gw, actor, rpc.ProcSetUserRoles, rpc.Params{
		"p_user_id": userID,
		"p_roles":   set.Strings(),
		"p_reason":  strings.TrimSpace(reason),
	})
	if err == nil && res.Success {
		s.log.Info("roles replaced",
			zap.Uint("user_id", userID),
			zap.Strings("roles", res.Data.Roles),
			zap.Uint("actor_id", actor.UserID))
	}
	return res, err
}

func (s *RoleService) adminOnly(actor Actor) (Result[procedures.UserRoles], bool) {
	if actor.Roles.Has(domain.RoleAdmin) || s.validator.IsSuperAdmin(actor.Email) {
		return Result[procedures.UserRoles]{}, true
	}
	return Failed[procedures.UserRoles](domain.CodeUnauthorized, "Unauthorized: admin role required"), false
}
