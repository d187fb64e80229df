package config

import (
	"context"
	"testing"

	"namlend/internal/adapters/persistence/memstore"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/password"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSeeder_Run(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seeder := NewSeeder(store, zaptest.NewLogger(t))

	require.NoError(t, seeder.Run(ctx, "root@namlend.test", "changeme123"))
	// second start is a no-op
	require.NoError(t, seeder.Run(ctx, "root@namlend.test", "changeme123"))

	loanStages, err := store.Approvals().ListStageDefinitions(ctx, string(domain.RequestLoanApplication))
	require.NoError(t, err)
	require.Len(t, loanStages, 4)
	assert.Equal(t, "Document review", loanStages[0].Name)
	assert.Equal(t, "admin", loanStages[3].Role)
	assert.Equal(t, 4, loanStages[3].Sequence)

	roleStages, err := store.Approvals().ListStageDefinitions(ctx, string(domain.RequestRoleChange))
	require.NoError(t, err)
	assert.Len(t, roleStages, 1)

	admin, err := store.Users().GetByEmail(ctx, "root@namlend.test")
	require.NoError(t, err)
	assert.True(t, admin.RoleSet().Has(domain.RoleAdmin))
	assert.True(t, password.Verify("changeme123", admin.Password))
}

func TestSeeder_WeakAdminPasswordSkipsAdmin(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	require.NoError(t, NewSeeder(store, nil).Run(ctx, "root@namlend.test", "short"))

	_, err := store.Users().GetByEmail(ctx, "root@namlend.test")
	assert.Error(t, err)
	stages, err := store.Approvals().ListStageDefinitions(ctx, string(domain.RequestLoanApplication))
	require.NoError(t, err)
	assert.Len(t, stages, 4)
}
