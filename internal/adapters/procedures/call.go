package procedures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/pkg/monitor"

	"go.uber.org/zap"
)

// effect is work that runs only after the transaction commits
type effect struct {
	name string
	run  func(ctx context.Context) error
}

// call is the state of one procedure invocation
type call struct {
	host      *Host
	procedure string
	tx        repositories.Store
	caller    rpc.Caller
	hasCaller bool
	now       time.Time
	actor     *models.User
	effects   []effect
}

func newCall(ctx context.Context, h *Host, procedure string) *call {
	caller, ok := rpc.CallerFrom(ctx)
	return &call{
		host:      h,
		procedure: procedure,
		caller:    caller,
		hasCaller: ok,
		now:       h.cfg.Now(),
	}
}

// ============================================================
// Caller checks
// ============================================================

// user loads the calling user once per invocation
func (c *call) user(ctx context.Context) (*models.User, error) {
	if !c.hasCaller {
		return nil, unauthorized("Unauthorized: authentication required")
	}
	if c.actor != nil {
		return c.actor, nil
	}

	u, err := c.tx.Users().GetByID(ctx, c.caller.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, unauthorized("Unauthorized: unknown caller")
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, unauthorized("Unauthorized: account is inactive")
	}
	c.actor = u
	return u, nil
}

// roles re-reads the caller's roles from the store
func (c *call) roles(ctx context.Context) (domain.RoleSet, error) {
	u, err := c.user(ctx)
	if err != nil {
		return 0, err
	}
	return u.RoleSet(), nil
}

// requireStaff admits admins and loan officers
func (c *call) requireStaff(ctx context.Context) error {
	set, err := c.roles(ctx)
	if err != nil {
		return err
	}
	if !set.Satisfies(domain.RoleLoanOfficer) {
		return unauthorized("Unauthorized: admin or loan officer role required")
	}
	return nil
}

// requireAdmin admits admins and the super-admin
func (c *call) requireAdmin(ctx context.Context) error {
	u, err := c.user(ctx)
	if err != nil {
		return err
	}
	if u.RoleSet().Has(domain.RoleAdmin) || c.host.validator.IsSuperAdmin(u.Email) {
		return nil
	}
	return unauthorized("Unauthorized: admin role required")
}

// requireSelfOrStaff admits the owner of a resource and staff
func (c *call) requireSelfOrStaff(ctx context.Context, ownerID uint) error {
	u, err := c.user(ctx)
	if err != nil {
		return err
	}
	if u.ID == ownerID || u.RoleSet().Satisfies(domain.RoleLoanOfficer) {
		return nil
	}
	return unauthorized("Unauthorized: access denied")
}

func (c *call) actorID() uint {
	if !c.hasCaller {
		return 0
	}
	return c.caller.UserID
}

// ============================================================
// Audit & notifications
// ============================================================

func (c *call) auditRow(action, entityType string, entityID uint, metadata any) *models.AuditLog {
	meta := "{}"
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}
	return &models.AuditLog{
		ActorID:    c.actorID(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   meta,
	}
}

// auditNow writes the audit row inside the transaction
func (c *call) auditNow(ctx context.Context, action, entityType string, entityID uint, metadata any) error {
	return c.tx.Audit().Append(ctx, c.auditRow(action, entityType, entityID, metadata))
}

// audit writes the audit row after commit; failures go to the monitor
func (c *call) audit(action, entityType string, entityID uint, metadata any) {
	row := c.auditRow(action, entityType, entityID, metadata)
	c.after("audit:"+action, func(ctx context.Context) error {
		return c.host.store.Audit().Append(ctx, row)
	})
}

// notify queues a notification for after commit
func (c *call) notify(userID uint, typ, title, message string) {
	if userID == 0 {
		return
	}
	n := &models.Notification{UserID: userID, Type: typ, Title: title, Message: message}
	c.after("notify:"+typ, func(ctx context.Context) error {
		return c.host.notifier.Notify(ctx, n)
	})
}

func (c *call) after(name string, fn func(ctx context.Context) error) {
	c.effects = append(c.effects, effect{name: name, run: fn})
}

// runEffects runs post-commit work; none of it can undo the transition
func (c *call) runEffects(ctx context.Context) {
	// the caller's deadline must not cancel side effects of a committed call
	ctx = context.WithoutCancel(ctx)
	for _, e := range c.effects {
		if err := e.run(ctx); err != nil {
			c.host.log.Warn("⚠️ side effect failed",
				zap.String("procedure", c.procedure),
				zap.String("effect", e.name),
				zap.Error(err))
			c.host.monitor.Report(monitor.Event{
				Category: monitor.CategorySideEffect,
				Severity: monitor.SeverityError,
				Message:  fmt.Sprintf("%s failed after %s", e.name, c.procedure),
				Metadata: map[string]any{"procedure": c.procedure, "effect": e.name, "error": err.Error()},
			})
		}
	}
}

// ============================================================
// Argument helpers
// ============================================================

func required(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

func lookupErr(err error, msg string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound(msg)
	}
	return err
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}

// ============================================================
// Store notifier
// ============================================================

type storeNotifier struct {
	store repositories.Store
}

// NewStoreNotifier writes notifications to the notifications table
func NewStoreNotifier(store repositories.Store) Notifier {
	return &storeNotifier{store: store}
}

func (n *storeNotifier) Notify(ctx context.Context, notification *models.Notification) error {
	return n.store.Notifications().Create(ctx, notification)
}
