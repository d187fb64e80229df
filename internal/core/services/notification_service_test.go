package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"namlend/internal/adapters/persistence/memstore"
	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/procedures"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierFunc func(ctx context.Context, n *models.Notification) error

func (f notifierFunc) Notify(ctx context.Context, n *models.Notification) error { return f(ctx, n) }

func TestNotificationService_SendsToLine(t *testing.T) {
	var got *http.Request
	var message string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got, message = r, r.PostForm.Get("message")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewNotificationService("line-token", nil)
	svc.endpoint = srv.URL
	require.True(t, svc.IsEnabled())

	err := svc.Notify(context.Background(), &models.Notification{UserID: 3, Type: "disbursement_completed", Title: "Funds sent", Message: "Loan #4 paid out"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Bearer line-token", got.Header.Get("Authorization"))
	assert.Contains(t, message, "Funds sent")
	assert.Contains(t, message, "Loan #4 paid out")
}

func TestNotificationService_Disabled(t *testing.T) {
	svc := NewNotificationService("", nil)
	assert.False(t, svc.IsEnabled())
	assert.NoError(t, svc.Notify(context.Background(), &models.Notification{}))
}

func TestNotificationService_RejectedByLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := NewNotificationService("expired", nil)
	svc.endpoint = srv.URL
	assert.Error(t, svc.Notify(context.Background(), &models.Notification{Title: "x"}))
}

func TestFanOut_TriesEverySink(t *testing.T) {
	store := memstore.New()
	boom := errors.New("line down")

	fan := FanOut{
		notifierFunc(func(context.Context, *models.Notification) error { return boom }),
		procedures.NewStoreNotifier(store),
	}
	err := fan.Notify(context.Background(), &models.Notification{UserID: 5, Type: "t", Title: "T", Message: "m"})
	assert.ErrorIs(t, err, boom)

	saved, err := store.Notifications().ListByUser(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Len(t, saved, 1, "a failing sink does not stop the others")
}
