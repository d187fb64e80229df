package procedures

import (
	"context"
	"fmt"
	"strings"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/roles"
)

type userArgs struct {
	UserID uint `json:"p_user_id"`
}

type roleArgs struct {
	UserID uint   `json:"p_user_id"`
	Role   string `json:"p_role"`
	Reason string `json:"p_reason"`
}

type setRolesArgs struct {
	UserID uint     `json:"p_user_id"`
	Roles  []string `json:"p_roles"`
	Reason string   `json:"p_reason"`
}

type hierarchyArgs struct {
	UserID    uint   `json:"p_user_id"`
	Role      string `json:"p_role"`
	Operation string `json:"p_operation"`
}

// UserRoles is returned by every role procedure
type UserRoles struct {
	UserID    uint     `json:"user_id"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	CanAdd    []string `json:"can_add"`
	CanRemove []string `json:"can_remove"`
}

func (h *Host) registerRoles() {
	register(h, rpc.ProcGetUserRoles, h.getUserRoles)
	register(h, rpc.ProcValidateRoleHierarchy, h.validateRoleHierarchy)
	register(h, rpc.ProcAssignUserRole, h.assignUserRole)
	register(h, rpc.ProcRemoveUserRole, h.removeUserRole)
	register(h, rpc.ProcSetUserRoles, h.setUserRoles)
}

func (h *Host) userRoles(u *models.User) UserRoles {
	set := u.RoleSet()
	opts := h.validator.Options(u.Email, set)
	return UserRoles{
		UserID:    u.ID,
		Email:     u.Email,
		Roles:     set.Strings(),
		CanAdd:    roleNames(opts.CanAdd),
		CanRemove: roleNames(opts.CanRemove),
	}
}

func roleNames(rs []domain.Role) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.String()
	}
	return out
}

func (h *Host) getUserRoles(ctx context.Context, c *call, args userArgs) (any, error) {
	if err := c.requireSelfOrStaff(ctx, args.UserID); err != nil {
		return nil, err
	}
	u, err := c.tx.Users().GetByID(ctx, args.UserID)
	if err != nil {
		return nil, lookupErr(err, "User not found")
	}
	return h.userRoles(u), nil
}

func (h *Host) validateRoleHierarchy(ctx context.Context, c *call, args hierarchyArgs) (any, error) {
	if err := c.requireStaff(ctx); err != nil {
		return nil, err
	}

	role, err := domain.ParseRole(args.Role)
	if err != nil {
		return nil, validation("Unknown role")
	}
	op, ok := roles.ParseOperation(args.Operation)
	if !ok {
		return nil, validation("Unknown role operation")
	}
	u, err := c.tx.Users().GetByID(ctx, args.UserID)
	if err != nil {
		return nil, lookupErr(err, "User not found")
	}
	return h.validator.Check(u.Email, u.RoleSet(), op, role), nil
}

func (h *Host) assignUserRole(ctx context.Context, c *call, args roleArgs) (any, error) {
	return h.changeRole(ctx, c, args, roles.OpAdd)
}

func (h *Host) removeUserRole(ctx context.Context, c *call, args roleArgs) (any, error) {
	return h.changeRole(ctx, c, args, roles.OpRemove)
}

func (h *Host) changeRole(ctx context.Context, c *call, args roleArgs, op roles.Operation) (any, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}

	u, err := applyRoleChange(ctx, c, RoleChangePayload{UserID: args.UserID, Role: args.Role, Action: string(op)})
	if err != nil {
		return nil, err
	}

	c.audit(auditActionFor(op), models.EntityUser, u.ID, map[string]any{
		"role":   strings.TrimSpace(args.Role),
		"reason": strings.TrimSpace(args.Reason),
	})
	return h.userRoles(u), nil
}

// applyRoleChange validates and applies one add or remove
func applyRoleChange(ctx context.Context, c *call, p RoleChangePayload) (*models.User, error) {
	target, err := checkRoleChange(ctx, c, p)
	if err != nil {
		return nil, err
	}

	role, _ := domain.ParseRole(p.Role)
	op, _ := roles.ParseOperation(p.Action)
	if op == roles.OpAdd {
		err = c.tx.Users().AddRole(ctx, target.ID, role, c.actorID())
	} else {
		err = c.tx.Users().RemoveRole(ctx, target.ID, role)
	}
	if err != nil {
		return nil, err
	}

	updated, err := c.tx.Users().GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	verb := "granted"
	if op == roles.OpRemove {
		verb = "removed"
	}
	c.notify(target.ID, "role_changed", "Roles updated", fmt.Sprintf("The %s role was %s on your account.", role, verb))
	return updated, nil
}

func (h *Host) setUserRoles(ctx context.Context, c *call, args setRolesArgs) (any, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}

	want, err := domain.ParseRoleSet(args.Roles)
	if err != nil {
		return nil, validation("Unknown role")
	}
	target, err := c.tx.Users().GetByID(ctx, args.UserID)
	if err != nil {
		return nil, lookupErr(err, "User not found")
	}

	if err := h.checkRoleSetChange(target, want); err != nil {
		return nil, err
	}

	if err := c.tx.Users().ReplaceRoles(ctx, target.ID, want, c.actorID()); err != nil {
		return nil, err
	}
	updated, err := c.tx.Users().GetByID(ctx, target.ID)
	if err != nil {
		return nil, err
	}

	c.audit(models.AuditRoleSet, models.EntityUser, target.ID, map[string]any{
		"from":   target.RoleSet().Strings(),
		"to":     want.Strings(),
		"reason": strings.TrimSpace(args.Reason),
	})
	c.notify(target.ID, "role_changed", "Roles updated",
		fmt.Sprintf("Your roles are now: %s.", strings.Join(want.Strings(), ", ")))
	return h.userRoles(updated), nil
}

// checkRoleSetChange allows a replacement when it is a legal combination
// reached from nothing, or a sequence of single steps the validator allows
func (h *Host) checkRoleSetChange(target *models.User, want domain.RoleSet) error {
	current := target.RoleSet()
	if h.validator.IsSuperAdmin(target.Email) || current == want {
		return nil
	}
	if current.IsEmpty() {
		if err := roles.ValidateSet(want); err != nil {
			return validation("Illegal role combination")
		}
		return nil
	}

	for _, r := range current.Roles() {
		if want.Has(r) {
			continue
		}
		if d := h.validator.Check(target.Email, current, roles.OpRemove, r); !d.Allowed {
			return validation(d.Reason)
		}
		current = current.Without(r)
	}
	for _, r := range want.Roles() {
		if current.Has(r) {
			continue
		}
		if d := h.validator.Check(target.Email, current, roles.OpAdd, r); !d.Allowed {
			return validation(d.Reason)
		}
		current = current.With(r)
	}
	return nil
}

func auditActionFor(op roles.Operation) string {
	if op == roles.OpRemove {
		return models.AuditRoleRemove
	}
	return models.AuditRoleAssign
}
