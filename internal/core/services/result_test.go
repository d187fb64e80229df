package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Call(ctx context.Context, procedure string, params rpc.Params) (json.RawMessage, error) {
	args := m.Called(ctx, procedure, params)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type sample struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Result[sample]
	}{
		{
			name: "success merges fields",
			raw:  `{"success":true,"id":7,"status":"approved"}`,
			want: Result[sample]{Success: true, Data: sample{ID: 7, Status: "approved"}},
		},
		{
			name: "business failure",
			raw:  `{"success":false,"error":"Loan already disbursed","code":"conflict"}`,
			want: Result[sample]{Error: "Loan already disbursed", Code: domain.CodeConflict},
		},
		{
			name: "failure without message",
			raw:  `{"success":false}`,
			want: Result[sample]{Error: MsgUnexpected},
		},
		{
			name: "missing success flag",
			raw:  `{"id":7}`,
			want: Result[sample]{Error: MsgUnexpected, Code: domain.CodeUnexpected},
		},
		{
			name: "not json",
			raw:  `<html>bad gateway</html>`,
			want: Result[sample]{Error: MsgUnexpected, Code: domain.CodeUnexpected},
		},
		{
			name: "field of the wrong type",
			raw:  `{"success":true,"id":"seven"}`,
			want: Result[sample]{Error: MsgUnexpected, Code: domain.CodeUnexpected},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decode[sample](json.RawMessage(tt.raw)))
		})
	}
}

func TestInvoke_AttachesCaller(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Call", mock.MatchedBy(func(ctx context.Context) bool {
		c, ok := rpc.CallerFrom(ctx)
		return ok && c.UserID == 42
	}), "get_user_roles", rpc.Params{"p_user_id": uint(42)}).
		Return(json.RawMessage(`{"success":true,"user_id":42,"roles":["client"]}`), nil).Once()

	svc := NewRoleService(gw, nil, nil)
	res, err := svc.Get(context.Background(), Actor{UserID: 42}, 42)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"client"}, res.Data.Roles)
	gw.AssertExpectations(t)
}

func TestInvoke_GatewayErrorIsNotABusinessFailure(t *testing.T) {
	open := &rpc.Error{Tag: rpc.TagCircuitOpen, Procedure: rpc.ProcGetPaymentSchedule}
	gw := new(mockGateway)
	gw.On("Call", mock.Anything, rpc.ProcGetPaymentSchedule, mock.Anything).Return(nil, open)

	svc := NewScheduleService(gw, nil)
	res, err := svc.Get(context.Background(), Actor{UserID: 1}, 9)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rpc.ErrCircuitOpen))
	assert.False(t, res.Success)
	assert.Equal(t, "Service temporarily unavailable, please try again shortly", Message(res, err))
}

func TestMessage(t *testing.T) {
	fail := Failed[sample](domain.CodeValidation, "Payment reference is required")
	assert.Equal(t, "Payment reference is required", Message(fail, nil))

	timeout := &rpc.Error{Tag: rpc.TagTimeout, Procedure: "x"}
	assert.Contains(t, Message(Result[sample]{}, timeout), "timed out")
	cancelled := &rpc.Error{Tag: rpc.TagCancelled, Procedure: "x", Err: context.Canceled}
	assert.Equal(t, "The request was cancelled", Message(Result[sample]{}, cancelled))
	assert.Equal(t, MsgUnexpected, Message(Result[sample]{}, errors.New("boom")))
}
