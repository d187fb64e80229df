package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"namlend/internal/adapters/http/middleware"
	"namlend/internal/adapters/persistence/memstore"
	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/procedures"
	"namlend/internal/adapters/rpc"
	"namlend/internal/config"
	"namlend/internal/core/domain"
	"namlend/internal/core/roles"
	"namlend/internal/core/services"
	"namlend/internal/pkg/jwt"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const secret = "test-secret"

type body struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type server struct {
	t     *testing.T
	app   *fiber.App
	store *memstore.Store
	deps  Deps

	admin, officer, client string
	clientID               uint
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zaptest.NewLogger(t)
	store := memstore.New()
	require.NoError(t, config.NewSeeder(store, log).Run(context.Background(), "", ""))

	host := procedures.NewHost(store, procedures.DefaultConfig(), procedures.WithLogger(log))
	gcfg := rpc.DefaultConfig()
	gcfg.BackoffBase = time.Millisecond
	gw := rpc.NewGateway(host, gcfg, nil, log)

	s := &server{t: t, store: store}
	s.deps = Deps{
		Mode:          "dev",
		DBPing:        func() error { return nil },
		Breakers:      gw.Breakers(),
		Auth:          services.NewAuthService(store.Users(), services.TokenConfig{Secret: secret, AccessMinutes: 60}, log),
		Approvals:     services.NewApprovalService(gw, log),
		Disbursements: services.NewDisbursementService(gw, log),
		Schedule:      services.NewScheduleService(gw, log),
		Roles:         services.NewRoleService(gw, roles.NewValidator(""), log),
	}
	s.app = newApp(s.deps)

	s.admin, _ = s.user("admin@namlend.test", domain.RoleAdmin)
	s.officer, _ = s.user("officer@namlend.test", domain.RoleLoanOfficer)
	s.client, s.clientID = s.user("client@namlend.test", domain.RoleClient)
	return s
}

func newApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	middleware.Setup(app, &config.Config{AppMode: "dev"})
	Setup(app, d)
	return app
}

// user stores a user and returns an access token for it
func (s *server) user(email string, r domain.Role) (string, uint) {
	u := &models.User{Email: email, FullName: email, Password: "x", IsActive: true,
		Roles: []models.UserRole{{Role: r.String()}}}
	require.NoError(s.t, s.store.Users().Create(context.Background(), u))
	token, err := jwt.GenerateAccessToken(u.ID, u.Email, []string{r.String()}, secret, 60)
	require.NoError(s.t, err)
	return token, u.ID
}

func do(t *testing.T, app *fiber.App, method, path, token string, payload any) (int, body) {
	t.Helper()
	var rd io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var b body
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &b), string(raw))
	}
	return resp.StatusCode, b
}

func (s *server) do(method, path, token string, payload any) (int, body) {
	return do(s.t, s.app, method, path, token, payload)
}

func decodeData[T any](t *testing.T, b body) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b.Data, &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	status, _ := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	s.deps.DBPing = func() error { return errors.New("down") }
	status, _ = do(t, newApp(s.deps), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestAuth(t *testing.T) {
	s := newServer(t)

	status, b := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "New@NamLend.test", "full_name": "New Borrower", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, status, b.Error)
	auth := decodeData[services.AuthResponse](t, b)
	assert.Equal(t, []string{"client"}, auth.User.Roles)
	assert.NotEmpty(t, auth.AccessToken)

	status, b = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "new@namlend.test", "full_name": "Again", "password": "longenough",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, b = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "bad", "full_name": "X", "password": "longenough",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "email must be a valid email", b.Error)

	status, _ = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "new@namlend.test", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, b = s.do(http.MethodGet, "/api/v1/auth/me", auth.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(b.Data), "new@namlend.test")

	status, b = s.do(http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Access token required", b.Error)

	status, b = s.do(http.MethodGet, "/api/v1/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid access token", b.Error)
}

func TestLoanLifecycle(t *testing.T) {
	s := newServer(t)

	status, b := s.do(http.MethodPost, "/api/v1/loans", s.client, map[string]any{
		"amount": "5000", "term_months": 12, "purpose": "stock",
	})
	require.Equal(t, http.StatusCreated, status, b.Error)
	started := decodeData[procedures.WorkflowStarted](t, b)
	assert.Equal(t, 4, started.TotalStages)

	// a client cannot decide a stage
	status, b = s.do(http.MethodPost, "/api/v1/approval-stages/"+itoa(started.StageID)+"/approve", s.client, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, domain.CodeUnauthorized, b.Code)
	assert.Equal(t, "Unauthorized: stage requires the loan_officer role", b.Error)

	stageID := started.StageID
	var decision procedures.StageDecision
	for _, approver := range []string{s.officer, s.officer, s.admin, s.admin} {
		status, b = s.do(http.MethodPost, "/api/v1/approval-stages/"+itoa(stageID)+"/approve", approver,
			map[string]string{"notes": "ok"})
		require.Equal(t, http.StatusOK, status, b.Error)
		decision = decodeData[procedures.StageDecision](t, b)
		if decision.NextStageID != nil {
			stageID = *decision.NextStageID
		}
	}
	assert.Equal(t, string(domain.RequestCompleted), decision.RequestStatus)
	require.NotNil(t, decision.DisbursementID)

	status, b = s.do(http.MethodPost, "/api/v1/approval-stages/"+itoa(stageID)+"/approve", s.admin, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, b = s.do(http.MethodGet, "/api/v1/approvals/"+itoa(started.RequestID), s.client, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 100, decodeData[procedures.RequestView](t, b).ProgressPercent)

	// disbursement
	dID := itoa(*decision.DisbursementID)
	status, _ = s.do(http.MethodGet, "/api/v1/disbursements", s.client, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, b = s.do(http.MethodGet, "/api/v1/disbursements?status=pending", s.officer, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[procedures.PendingDisbursements](t, b).Disbursements, 1)

	status, _ = s.do(http.MethodPost, "/api/v1/disbursements/"+dID+"/approve", s.officer, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodPost, "/api/v1/disbursements/"+dID+"/processing", s.officer, nil)
	require.Equal(t, http.StatusOK, status)

	status, b = s.do(http.MethodPost, "/api/v1/disbursements/"+dID+"/complete", s.officer, map[string]string{
		"payment_method": "cheque", "payment_reference": "X1",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid payment method", b.Error)

	status, b = s.do(http.MethodPost, "/api/v1/disbursements/"+dID+"/complete", s.officer, map[string]string{
		"payment_method": "bank_transfer", "payment_reference": "TRX-42",
	})
	require.Equal(t, http.StatusOK, status, b.Error)
	done := decodeData[procedures.DisbursementResult](t, b)
	assert.Equal(t, string(domain.DisbursementCompleted), done.Status)

	// schedule and payment
	loanID := itoa(started.LoanID)
	status, b = s.do(http.MethodPost, "/api/v1/loans/"+loanID+"/schedule", s.officer, map[string]string{"start_date": "2026-01-15"})
	require.Equal(t, http.StatusCreated, status, b.Error)
	assert.Equal(t, 12, decodeData[procedures.ScheduleGenerated](t, b).InstallmentsCreated)

	status, _ = s.do(http.MethodPost, "/api/v1/loans/"+loanID+"/schedule", s.officer, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, b = s.do(http.MethodPost, "/api/v1/loans/"+loanID+"/payments", s.client, map[string]string{
		"amount": "100", "method": "mobile_money", "reference": "MM-1",
	})
	require.Equal(t, http.StatusCreated, status, b.Error)
	paid := decodeData[services.PaymentRecorded](t, b)

	status, b = s.do(http.MethodPost, "/api/v1/payments/"+itoa(paid.PaymentID)+"/apply", s.officer, nil)
	require.Equal(t, http.StatusOK, status, b.Error)
	assert.Equal(t, 1, decodeData[procedures.PaymentApplied](t, b).EntriesUpdated)

	status, b = s.do(http.MethodGet, "/api/v1/loans/"+loanID+"/schedule", s.client, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[procedures.ScheduleView](t, b).Installments, 12)
}

func TestRejectAndValidation(t *testing.T) {
	s := newServer(t)

	status, b := s.do(http.MethodPost, "/api/v1/loans", s.client, map[string]any{"amount": "0", "term_months": 12})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "amount must be a positive amount", b.Error)
	assert.Equal(t, domain.CodeValidation, b.Code)

	status, b = s.do(http.MethodPost, "/api/v1/loans", s.client, map[string]any{"amount": "900", "term_months": 6})
	require.Equal(t, http.StatusCreated, status, b.Error)
	started := decodeData[procedures.WorkflowStarted](t, b)

	status, b = s.do(http.MethodPost, "/api/v1/approval-stages/abc/reject", s.officer, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid stage ID", b.Error)

	status, b = s.do(http.MethodPost, "/api/v1/approval-stages/"+itoa(started.StageID)+"/reject", s.officer, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Rejection notes are required", b.Error)

	status, b = s.do(http.MethodPost, "/api/v1/approval-stages/"+itoa(started.StageID)+"/reject", s.officer,
		map[string]string{"notes": "incomplete documents"})
	require.Equal(t, http.StatusOK, status, b.Error)
	assert.Equal(t, string(domain.RequestRejected), decodeData[procedures.StageDecision](t, b).RequestStatus)

	status, _ = s.do(http.MethodGet, "/api/v1/approvals/999", s.client, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRoles(t *testing.T) {
	s := newServer(t)
	path := "/api/v1/users/" + itoa(s.clientID) + "/roles"

	status, b := s.do(http.MethodPost, path, s.officer, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Unauthorized: admin role required", b.Error)

	status, b = s.do(http.MethodPost, path, s.admin, map[string]string{"role": "loan_officer"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Client role is exclusive and cannot be changed", b.Error)

	status, b = s.do(http.MethodPost, path, s.admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "role is required", b.Error)

	status, b = s.do(http.MethodGet, path+"/validate?role=admin&operation=add", s.admin, nil)
	require.Equal(t, http.StatusOK, status, b.Error)
	assert.False(t, decodeData[roles.Decision](t, b).Allowed)

	newbie := &models.User{Email: "newbie@namlend.test", Password: "x", IsActive: true}
	require.NoError(t, s.store.Users().Create(context.Background(), newbie))
	path = "/api/v1/users/" + itoa(newbie.ID) + "/roles"

	status, b = s.do(http.MethodPut, path, s.admin, map[string]any{"roles": []string{"loan_officer"}, "reason": "hired"})
	require.Equal(t, http.StatusOK, status, b.Error)
	assert.Equal(t, []string{"loan_officer"}, decodeData[procedures.UserRoles](t, b).Roles)

	status, b = s.do(http.MethodGet, path, s.admin, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"loan_officer"}, decodeData[procedures.UserRoles](t, b).Roles)

	status, b = s.do(http.MethodDelete, path+"/loan_officer", s.admin, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Loan officer role is exclusive and cannot be changed", b.Error)
}

// stubGateway fails every call with a fixed gateway error
type stubGateway struct{ tag string }

func (g stubGateway) Call(_ context.Context, procedure string, _ rpc.Params) (json.RawMessage, error) {
	return nil, &rpc.Error{Tag: g.tag, Procedure: procedure}
}

func TestGatewayErrors(t *testing.T) {
	tests := []struct {
		tag    string
		status int
		msg    string
	}{
		{rpc.TagCircuitOpen, http.StatusServiceUnavailable, "Service temporarily unavailable, please try again shortly"},
		{rpc.TagTimeout, http.StatusGatewayTimeout, "The request timed out; refresh to check whether it was applied"},
		{rpc.TagCancelled, 499, "The request was cancelled"},
		{rpc.TagTransport, http.StatusInternalServerError, services.MsgUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			s := newServer(t)
			d := s.deps
			d.Schedule = services.NewScheduleService(stubGateway{tag: tt.tag}, nil)

			status, b := do(t, newApp(d), http.MethodGet, "/api/v1/loans/1/schedule", s.client, nil)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.tag, b.Code)
			assert.Equal(t, tt.msg, b.Error)
		})
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
