// Package roles encodes which role combinations a user may hold and which
// single-role mutations are allowed from a given role set.
package roles

import (
	"errors"
	"strings"

	"namlend/internal/core/domain"
)

// ErrIllegalCombination is returned by ValidateSet for a forbidden role mix
var ErrIllegalCombination = errors.New("illegal role combination")

// Operation is a single-role mutation
type Operation string

const (
	OpAdd    Operation = "add"
	OpRemove Operation = "remove"
)

// ParseOperation converts a wire name into an Operation
func ParseOperation(s string) (Operation, bool) {
	switch Operation(strings.ToLower(strings.TrimSpace(s))) {
	case OpAdd:
		return OpAdd, true
	case OpRemove:
		return OpRemove, true
	}
	return "", false
}

// Decision is the outcome of checking one mutation
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Options enumerates the mutations allowed from a role set
type Options struct {
	CanAdd    []domain.Role `json:"can_add"`
	CanRemove []domain.Role `json:"can_remove"`
}

// Validator checks role mutations. The zero value has no super-admin.
type Validator struct {
	superAdmin string
}

// NewValidator creates a validator exempting the given identity
func NewValidator(superAdminIdentity string) *Validator {
	return &Validator{superAdmin: strings.ToLower(strings.TrimSpace(superAdminIdentity))}
}

// IsSuperAdmin reports whether identity is the reserved super-admin
func (v *Validator) IsSuperAdmin(identity string) bool {
	if v == nil || v.superAdmin == "" {
		return false
	}
	return strings.ToLower(strings.TrimSpace(identity)) == v.superAdmin
}

// Check decides whether op on role is allowed for a user holding current.
func (v *Validator) Check(identity string, current domain.RoleSet, op Operation, role domain.Role) Decision {
	if op != OpAdd && op != OpRemove {
		return deny("Unknown role operation")
	}

	if v.IsSuperAdmin(identity) {
		return allow()
	}

	switch {
	case current.Has(domain.RoleClient):
		return deny("Client role is exclusive and cannot be changed")
	case current.Has(domain.RoleLoanOfficer) && !current.Has(domain.RoleAdmin):
		return deny("Loan officer role is exclusive and cannot be changed")
	case current.Has(domain.RoleAdmin):
		return checkAdmin(current, op, role)
	}

	// empty set
	if op == OpRemove {
		return deny("User has no roles to remove")
	}
	switch role {
	case domain.RoleClient, domain.RoleLoanOfficer, domain.RoleAdmin:
		return allow()
	}
	return deny("Unknown role")
}

func checkAdmin(current domain.RoleSet, op Operation, role domain.Role) Decision {
	switch role {
	case domain.RoleLoanOfficer:
		if op == OpAdd {
			if current.Has(domain.RoleLoanOfficer) {
				return deny("User already has the loan_officer role")
			}
			return allow()
		}
		if !current.Has(domain.RoleLoanOfficer) {
			return deny("User does not have the loan_officer role")
		}
		return allow()
	case domain.RoleAdmin:
		if op == OpAdd {
			return deny("User already has the admin role")
		}
		return deny("The admin role cannot be removed")
	case domain.RoleClient:
		if op == OpAdd {
			return deny("Admins cannot also hold the client role")
		}
		return deny("User does not have the client role")
	}
	return deny("Unknown role")
}

// Options enumerates {canAdd, canRemove} for a user holding current
func (v *Validator) Options(identity string, current domain.RoleSet) Options {
	opts := Options{CanAdd: []domain.Role{}, CanRemove: []domain.Role{}}
	for _, r := range domain.AllRoles {
		if !current.Has(r) && v.Check(identity, current, OpAdd, r).Allowed {
			opts.CanAdd = append(opts.CanAdd, r)
		}
		if current.Has(r) && v.Check(identity, current, OpRemove, r).Allowed {
			opts.CanRemove = append(opts.CanRemove, r)
		}
	}
	return opts
}

// ValidateSet reports whether s is a legal role combination on its own.
func ValidateSet(s domain.RoleSet) error {
	switch {
	case s.IsEmpty():
		return nil
	case s.Has(domain.RoleClient) && s != domain.NewRoleSet(domain.RoleClient):
		return ErrIllegalCombination
	case s.Has(domain.RoleLoanOfficer) && !s.Has(domain.RoleAdmin) && s != domain.NewRoleSet(domain.RoleLoanOfficer):
		return ErrIllegalCombination
	}
	return nil
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }
