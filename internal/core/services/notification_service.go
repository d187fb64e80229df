package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/procedures"

	"go.uber.org/zap"
)

const lineNotifyURL = "https://notify-api.line.me/api/notify"

// NotificationService pushes notifications to the back-office LINE Notify
// channel
type NotificationService struct {
	lineNotifyToken string
	endpoint        string
	client          *http.Client
	log             *zap.Logger
}

// NewNotificationService creates a new notification service. An empty token
// disables the LINE channel.
func NewNotificationService(token string, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{
		lineNotifyToken: token,
		endpoint:        lineNotifyURL,
		client:          &http.Client{Timeout: 5 * time.Second},
		log:             log.Named("notify"),
	}
}

// IsEnabled checks if notification is enabled
func (s *NotificationService) IsEnabled() bool {
	return s.lineNotifyToken != ""
}

// Notify implements procedures.Notifier
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.sendLineNotify(ctx, fmt.Sprintf("\n%s\n\n%s\n(user #%d, %s)", n.Title, n.Message, n.UserID, n.Type))
}

// sendLineNotify sends a message via LINE Notify
func (s *NotificationService) sendLineNotify(ctx context.Context, message string) error {
	data := url.Values{}
	data.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBufferString(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.lineNotifyToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("line notify: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// FanOut delivers each notification to every sink. All sinks are tried;
// their errors are joined.
type FanOut []procedures.Notifier

// Notify implements procedures.Notifier
func (f FanOut) Notify(ctx context.Context, n *models.Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
