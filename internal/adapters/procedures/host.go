// Package procedures hosts the named procedures that own every state
// transition. Each call runs authorization, precondition checks and
// persistence inside one store transaction and answers with a JSON
// envelope: {"success": true, ...fields} or {"success": false, "error", "code"}.
package procedures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/adapters/rpc"
	"namlend/internal/core/domain"
	"namlend/internal/core/ledger"
	"namlend/internal/core/roles"
	"namlend/internal/pkg/monitor"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrUnknownProcedure is a transport error for names nobody registered
var ErrUnknownProcedure = errors.New("unknown procedure")

// Failure is a business failure. Returning one from a procedure rolls the
// transaction back and becomes a {"success": false} envelope.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (f *Failure) Error() string { return f.Message }

func validation(msg string) *Failure   { return &Failure{Code: domain.CodeValidation, Message: msg} }
func unauthorized(msg string) *Failure { return &Failure{Code: domain.CodeUnauthorized, Message: msg} }
func conflict(msg string) *Failure     { return &Failure{Code: domain.CodeConflict, Message: msg} }
func notFound(msg string) *Failure     { return &Failure{Code: domain.CodeNotFound, Message: msg} }

// Notifier delivers user notifications after a transition commits
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// Config holds the business parameters procedures need
type Config struct {
	SuperAdminEmail string
	DefaultRate     decimal.Decimal // annual percent
	MaxRate         decimal.Decimal
	MaxTermMonths   int
	LateFee         ledger.LateFeePolicy
	Now             func() time.Time
}

// DefaultConfig is 32% APR, terms up to 60 months and the default late fee policy
func DefaultConfig() Config {
	return Config{
		DefaultRate:   decimal.NewFromInt(32),
		MaxRate:       decimal.NewFromInt(32),
		MaxTermMonths: 60,
		LateFee:       ledger.DefaultLateFeePolicy(),
		Now:           time.Now,
	}
}

type handler func(ctx context.Context, c *call, raw json.RawMessage) (any, error)

// Host implements rpc.Executor in-process against a Store
type Host struct {
	store     repositories.Store
	cfg       Config
	validator *roles.Validator
	notifier  Notifier
	monitor   monitor.Monitor
	log       *zap.Logger
	procs     map[string]handler
}

// Option customizes a Host
type Option func(*Host)

// WithNotifier replaces the default store-backed notifier
func WithNotifier(n Notifier) Option {
	return func(h *Host) { h.notifier = n }
}

// WithMonitor sets where failed side effects are reported
func WithMonitor(m monitor.Monitor) Option {
	return func(h *Host) { h.monitor = m }
}

// WithLogger sets the host logger
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l.Named("procedures") }
}

// NewHost creates a host with every procedure registered
func NewHost(store repositories.Store, cfg Config, opts ...Option) *Host {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxTermMonths <= 0 {
		cfg.MaxTermMonths = DefaultConfig().MaxTermMonths
	}
	h := &Host{
		store:     store,
		cfg:       cfg,
		validator: roles.NewValidator(cfg.SuperAdminEmail),
		notifier:  NewStoreNotifier(store),
		monitor:   monitor.Nop{},
		log:       zap.NewNop(),
		procs:     make(map[string]handler),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registerDisbursements()
	h.registerWorkflow()
	h.registerSchedule()
	h.registerRoles()
	return h
}

// Procedures lists the registered names
func (h *Host) Procedures() []string {
	names := make([]string, 0, len(h.procs))
	for name := range h.procs {
		names = append(names, name)
	}
	return names
}

// register binds a typed procedure; args decode from the p_-prefixed params
func register[A any](h *Host, name string, fn func(ctx context.Context, c *call, args A) (any, error)) {
	h.procs[name] = func(ctx context.Context, c *call, raw json.RawMessage) (any, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, validation("Invalid arguments")
			}
		}
		return fn(ctx, c, args)
	}
}

// Execute runs one procedure. Business failures are returned as envelopes
// with a nil error; any other error is a transport failure.
func (h *Host) Execute(ctx context.Context, procedure string, params rpc.Params) (reply json.RawMessage, err error) {
	fn, ok := h.procs[procedure]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcedure, procedure)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("💥 procedure panicked", zap.String("procedure", procedure), zap.Any("panic", r))
			reply, err = nil, fmt.Errorf("procedure %s panicked: %v", procedure, r)
		}
	}()

	c := newCall(ctx, h, procedure)
	var result any
	err = h.store.Transaction(ctx, func(tx repositories.Store) error {
		c.tx = tx
		var ferr error
		result, ferr = fn(ctx, c, raw)
		return ferr
	})

	var failure *Failure
	if errors.As(err, &failure) {
		return json.Marshal(map[string]any{"success": false, "error": failure.Message, "code": failure.Code})
	}
	if err != nil {
		h.log.Error("❌ procedure failed", zap.String("procedure", procedure), zap.Error(err))
		return nil, err
	}

	c.runEffects(ctx)
	return successEnvelope(result)
}

func successEnvelope(result any) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, fmt.Errorf("result must be an object: %w", err)
		}
	}
	fields["success"] = json.RawMessage("true")
	return json.Marshal(fields)
}

var _ rpc.Executor = (*Host)(nil)
