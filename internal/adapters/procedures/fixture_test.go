package procedures

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"namlend/internal/adapters/persistence/memstore"
	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/monitor"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const superAdminEmail = "root@namlend.test"

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	store   *memstore.Store
	host    *Host
	monitor *monitor.Recorder
	now     time.Time

	admin   *models.User
	officer *models.User
	client  *models.User
	root    *models.User
	newbie  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{t: t, store: memstore.New(), monitor: &monitor.Recorder{}, now: testNow}
	f.store.SetClock(func() time.Time { return f.now })

	cfg := DefaultConfig()
	cfg.SuperAdminEmail = superAdminEmail
	cfg.Now = func() time.Time { return f.now }
	f.host = NewHost(f.store, cfg, WithMonitor(f.monitor))

	f.admin = f.user("admin@namlend.test", domain.RoleAdmin)
	f.officer = f.user("officer@namlend.test", domain.RoleLoanOfficer)
	f.client = f.user("client@namlend.test", domain.RoleClient)
	f.root = f.user(superAdminEmail)
	f.newbie = f.user("new@namlend.test")

	f.stages(domain.RequestLoanApplication,
		stageDef{"Document review", domain.RoleLoanOfficer},
		stageDef{"Credit assessment", domain.RoleLoanOfficer},
		stageDef{"Risk review", domain.RoleAdmin},
		stageDef{"Final approval", domain.RoleAdmin},
	)
	f.stages(domain.RequestRoleChange, stageDef{"Admin approval", domain.RoleAdmin})
	return f
}

type stageDef struct {
	name string
	role domain.Role
}

func (f *fixture) user(email string, rs ...domain.Role) *models.User {
	u := &models.User{Email: email, FullName: email, Password: "x", IsActive: true}
	for _, r := range rs {
		u.Roles = append(u.Roles, models.UserRole{Role: r.String()})
	}
	require.NoError(f.t, f.store.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) stages(typ domain.RequestType, defs ...stageDef) {
	for i, d := range defs {
		require.NoError(f.t, f.store.Approvals().CreateStageDefinition(context.Background(), &models.ApprovalStageDefinition{
			RequestType: string(typ),
			Sequence:    i + 1,
			Name:        d.name,
			Role:        d.role.String(),
			IsActive:    true,
		}))
	}
}

// loan creates a loan for the client directly in the store
func (f *fixture) loan(status domain.LoanStatus, amount int64, term int, rate int64) *models.Loan {
	l := &models.Loan{
		BorrowerID:   f.client.ID,
		Amount:       decimal.NewFromInt(amount),
		TermMonths:   term,
		InterestRate: decimal.NewFromInt(rate),
		Status:       string(status),
	}
	require.NoError(f.t, f.store.Loans().Create(context.Background(), l))
	return l
}

// envelope is a decoded procedure reply
type envelope map[string]any

func (e envelope) ok() bool {
	b, _ := e["success"].(bool)
	return b
}

func (e envelope) err() string {
	s, _ := e["error"].(string)
	return s
}

func (e envelope) code() string {
	s, _ := e["code"].(string)
	return s
}

func (e envelope) id(k string) uint {
	n, _ := e[k].(float64)
	return uint(n)
}

// exec calls a procedure as user; a nil user calls without identity
func (f *fixture) exec(as *models.User, procedure string, params rpc.Params) envelope {
	f.t.Helper()
	ctx := context.Background()
	if as != nil {
		ctx = rpc.WithCaller(ctx, rpc.Caller{UserID: as.ID})
	}
	raw, err := f.host.Execute(ctx, procedure, params)
	require.NoError(f.t, err)

	var out envelope
	require.NoError(f.t, json.Unmarshal(raw, &out))
	return out
}

// must calls a procedure and requires success
func (f *fixture) must(as *models.User, procedure string, params rpc.Params) envelope {
	f.t.Helper()
	out := f.exec(as, procedure, params)
	require.True(f.t, out.ok(), "%s failed: %s", procedure, out.err())
	return out
}

func (f *fixture) getLoan(id uint) *models.Loan {
	l, err := f.store.Loans().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return l
}

func (f *fixture) getDisbursement(id uint) *models.Disbursement {
	d, err := f.store.Disbursements().GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return d
}

// approvedLoanWithDisbursement returns an approved loan and its pending disbursement
func (f *fixture) approvedLoanWithDisbursement() (*models.Loan, uint) {
	loan := f.loan(domain.LoanApproved, 5000, 12, 32)
	out := f.must(f.officer, rpc.ProcCreateDisbursementOnApproval, rpc.Params{"p_loan_id": loan.ID})
	return loan, out.id("disbursement_id")
}
