package domain

import (
	"fmt"
	"strings"
)

// Role is a closed enumeration of the roles a user can hold
type Role uint8

const (
	RoleClient Role = iota + 1
	RoleLoanOfficer
	RoleAdmin
)

// AllRoles lists every role in declaration order
var AllRoles = []Role{RoleClient, RoleLoanOfficer, RoleAdmin}

// String returns the wire name of the role
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleLoanOfficer:
		return "loan_officer"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole converts a wire name into a Role
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient, nil
	case "loan_officer":
		return RoleLoanOfficer, nil
	case "admin":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// MarshalText implements encoding.TextMarshaler
func (r Role) MarshalText() ([]byte, error) {
	if r < RoleClient || r > RoleAdmin {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RoleSet is the set of roles held by one user
type RoleSet uint8

// NewRoleSet builds a set from roles
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// ParseRoleSet builds a set from wire names
func ParseRoleSet(names []string) (RoleSet, error) {
	var s RoleSet
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return 0, err
		}
		s = s.With(r)
	}
	return s, nil
}

// Has reports whether r is a member
func (s RoleSet) Has(r Role) bool { return s&(1<<r) != 0 }

// With returns the set plus r
func (s RoleSet) With(r Role) RoleSet { return s | (1 << r) }

// Without returns the set minus r
func (s RoleSet) Without(r Role) RoleSet { return s &^ (1 << r) }

// IsEmpty reports whether the set has no members
func (s RoleSet) IsEmpty() bool { return s == 0 }

// Roles returns the members in declaration order
func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if s.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Strings returns the wire names of the members
func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(AllRoles))
	for _, r := range s.Roles() {
		out = append(out, r.String())
	}
	return out
}

// IsStaff reports whether the set grants back-office rights
func (s RoleSet) IsStaff() bool {
	return s.Has(RoleAdmin) || s.Has(RoleLoanOfficer)
}

// Satisfies reports whether the set may act in place of the given role.
// admin subsumes loan_officer.
func (s RoleSet) Satisfies(r Role) bool {
	if s.Has(r) {
		return true
	}
	return r == RoleLoanOfficer && s.Has(RoleAdmin)
}

// LoanStatus is the lifecycle status of a loan
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanDisbursed LoanStatus = "disbursed"
	LoanCompleted LoanStatus = "completed"
)

// DisbursementStatus is the lifecycle status of a disbursement
type DisbursementStatus string

const (
	DisbursementPending    DisbursementStatus = "pending"
	DisbursementApproved   DisbursementStatus = "approved"
	DisbursementProcessing DisbursementStatus = "processing"
	DisbursementCompleted  DisbursementStatus = "completed"
	DisbursementFailed     DisbursementStatus = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s DisbursementStatus) IsTerminal() bool {
	return s == DisbursementCompleted || s == DisbursementFailed
}

// CanTransitionTo encodes the disbursement state machine
func (s DisbursementStatus) CanTransitionTo(next DisbursementStatus) bool {
	switch next {
	case DisbursementApproved:
		return s == DisbursementPending
	case DisbursementProcessing:
		return s == DisbursementApproved
	case DisbursementCompleted:
		return s == DisbursementApproved || s == DisbursementProcessing
	case DisbursementFailed:
		return !s.IsTerminal()
	default:
		return false
	}
}

// PaymentMethod is the closed set of money movement channels
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCash         PaymentMethod = "cash"
	MethodDebitOrder   PaymentMethod = "debit_order"
)

// PaymentMethods lists every recognised method
var PaymentMethods = []PaymentMethod{MethodBankTransfer, MethodMobileMoney, MethodCash, MethodDebitOrder}

// Valid reports whether m is a recognised method
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodMobileMoney, MethodCash, MethodDebitOrder:
		return true
	}
	return false
}

// RequestStatus is the status of an approval request
type RequestStatus string

const (
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestRejected   RequestStatus = "rejected"
	RequestCancelled  RequestStatus = "cancelled"
)

// StageStatus is the status of a stage execution
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageApproved StageStatus = "approved"
	StageRejected StageStatus = "rejected"
	StageSkipped  StageStatus = "skipped"
)

// RequestType names the kinds of work routed through approval
type RequestType string

const (
	RequestLoanApplication RequestType = "loan_application"
	RequestRoleChange      RequestType = "role_change"
)

// Valid reports whether t is a known request type
func (t RequestType) Valid() bool {
	return t == RequestLoanApplication || t == RequestRoleChange
}

// InstallmentStatus is the status of a schedule entry
type InstallmentStatus string

const (
	InstallmentPending       InstallmentStatus = "pending"
	InstallmentPaid          InstallmentStatus = "paid"
	InstallmentPartiallyPaid InstallmentStatus = "partially_paid"
	InstallmentOverdue       InstallmentStatus = "overdue"
	InstallmentWaived        InstallmentStatus = "waived"
)

// IsSettled reports whether the entry accepts no more money
func (s InstallmentStatus) IsSettled() bool {
	return s == InstallmentPaid || s == InstallmentWaived
}

// PaymentStatus is the status of a money-in event
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// LateFeeStatus is the status of a persisted late fee
type LateFeeStatus string

const (
	LateFeeApplied LateFeeStatus = "applied"
	LateFeeWaived  LateFeeStatus = "waived"
)
