package services

import (
	"context"
	"testing"

	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleService_Options(t *testing.T) {
	e := newEnv(t)

	client := e.roles.Options(e.client.Email, e.client.Roles)
	assert.Empty(t, client.CanAdd)
	assert.Empty(t, client.CanRemove)

	admin := e.roles.Options(e.admin.Email, e.admin.Roles)
	assert.Equal(t, []domain.Role{domain.RoleLoanOfficer}, admin.CanAdd)

	root := e.roles.Options(rootEmail, domain.NewRoleSet(domain.RoleClient))
	assert.NotEmpty(t, root.CanAdd)
}

func TestRoleService_AssignAndRemove(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	staff := e.user("staff@namlend.test")

	res, err := e.roles.Assign(ctx, e.admin, staff.UserID, "admin", "promotion")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"admin"}, res.Data.Roles)
	assert.Equal(t, []string{"loan_officer"}, res.Data.CanAdd)

	res, err = e.roles.Assign(ctx, e.admin, staff.UserID, "loan_officer", "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"loan_officer", "admin"}, res.Data.Roles)

	res, err = e.roles.Remove(ctx, e.admin, staff.UserID, "admin", "")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeValidation, res.Code)

	set, err := e.store.Users().GetRoles(ctx, staff.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewRoleSet(domain.RoleAdmin, domain.RoleLoanOfficer), set)
}

func TestRoleService_LocalRefusals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.roles.Assign(ctx, e.officer, e.client.UserID, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, "Unauthorized: admin role required", res.Error)

	res, err = e.roles.Assign(ctx, e.admin, e.client.UserID, "superuser", "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown role", res.Error)

	res, err = e.roles.Set(ctx, e.admin, e.client.UserID, []string{"client", "banker"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown role", res.Error)

	assert.Zero(t, e.exec.count(rpc.ProcAssignUserRole))
	assert.Zero(t, e.exec.count(rpc.ProcSetUserRoles))
}

func TestRoleService_SuperAdmin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.roles.Set(ctx, e.root, e.client.UserID, []string{"client"}, "no-op")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)

	res, err = e.roles.Assign(ctx, e.root, e.root.UserID, "client", "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	res, err = e.roles.Assign(ctx, e.root, e.root.UserID, "admin", "")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"client", "admin"}, res.Data.Roles)
}

func TestRoleService_Validate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.roles.Validate(ctx, e.officer, e.admin.UserID, "client", "add")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Data.Allowed)
	assert.Equal(t, "Admins cannot also hold the client role", res.Data.Reason)
}
