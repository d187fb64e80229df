package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"namlend/internal/adapters/persistence/memstore"
	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/roles"
	"namlend/internal/pkg/monitor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const rootEmail = "root@namlend.test"

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// countingExecutor records which procedures reached the host
type countingExecutor struct {
	next rpc.Executor

	mu    sync.Mutex
	calls map[string]int
}

func (e *countingExecutor) Execute(ctx context.Context, procedure string, params rpc.Params) (json.RawMessage, error) {
	e.mu.Lock()
	e.calls[procedure]++
	e.mu.Unlock()
	return e.next.Execute(ctx, procedure, params)
}

func (e *countingExecutor) count(procedure string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[procedure]
}

type env struct {
	t       *testing.T
	store   *memstore.Store
	exec    *countingExecutor
	gw      *rpc.Gateway
	monitor *monitor.Recorder

	disbursements *DisbursementService
	approvals     *ApprovalService
	schedule      *ScheduleService
	roles         *RoleService

	admin, officer, client, root Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := zaptest.NewLogger(t)

	e := &env{t: t, store: memstore.New(), monitor: &monitor.Recorder{}}
	e.store.SetClock(func() time.Time { return testNow })

	cfg := procedures.DefaultConfig()
	cfg.SuperAdminEmail = rootEmail
	cfg.Now = func() time.Time { return testNow }
	host := procedures.NewHost(e.store, cfg, procedures.WithMonitor(e.monitor), procedures.WithLogger(log))

	e.exec = &countingExecutor{next: host, calls: map[string]int{}}
	gcfg := rpc.DefaultConfig()
	gcfg.BackoffBase = time.Millisecond
	e.gw = rpc.NewGateway(e.exec, gcfg, e.monitor, log)

	e.disbursements = NewDisbursementService(e.gw, log)
	e.approvals = NewApprovalService(e.gw, log)
	e.schedule = NewScheduleService(e.gw, log)
	e.roles = NewRoleService(e.gw, roles.NewValidator(rootEmail), log)

	e.admin = e.user("admin@namlend.test", domain.RoleAdmin)
	e.officer = e.user("officer@namlend.test", domain.RoleLoanOfficer)
	e.client = e.user("client@namlend.test", domain.RoleClient)
	e.root = e.user(rootEmail)

	for i, d := range []struct {
		name string
		role domain.Role
	}{
		{"Document review", domain.RoleLoanOfficer},
		{"Credit assessment", domain.RoleLoanOfficer},
		{"Risk review", domain.RoleAdmin},
		{"Final approval", domain.RoleAdmin},
	} {
		require.NoError(t, e.store.Approvals().CreateStageDefinition(context.Background(), &models.ApprovalStageDefinition{
			RequestType: string(domain.RequestLoanApplication),
			Sequence:    i + 1,
			Name:        d.name,
			Role:        d.role.String(),
			IsActive:    true,
		}))
	}
	return e
}

func (e *env) user(email string, rs ...domain.Role) Actor {
	u := &models.User{Email: email, FullName: email, Password: "x", IsActive: true}
	for _, r := range rs {
		u.Roles = append(u.Roles, models.UserRole{Role: r.String()})
	}
	require.NoError(e.t, e.store.Users().Create(context.Background(), u))
	return Actor{UserID: u.ID, Email: u.Email, Roles: domain.NewRoleSet(rs...)}
}

func (e *env) loan(status domain.LoanStatus, amount int64) *models.Loan {
	l := &models.Loan{
		BorrowerID:   e.client.UserID,
		Amount:       decimal.NewFromInt(amount),
		TermMonths:   12,
		InterestRate: decimal.NewFromInt(32),
		Status:       string(status),
	}
	require.NoError(e.t, e.store.Loans().Create(context.Background(), l))
	return l
}

func (e *env) getLoan(id uint) *models.Loan {
	l, err := e.store.Loans().GetByID(context.Background(), id)
	require.NoError(e.t, err)
	return l
}
