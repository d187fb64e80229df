// Package memstore is an in-process implementation of repositories.Store.
// A transaction works on a private copy of every table and swaps it in on
// success, so a failed unit of work leaves no trace.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
)

// table holds rows of one model keyed by their auto-increment ID
type table[T any] struct {
	seq  uint
	rows map[uint]T
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[uint]T)}
}

func (t *table[T]) next() uint {
	t.seq++
	return t.seq
}

func (t *table[T]) clone() *table[T] {
	c := &table[T]{seq: t.seq, rows: make(map[uint]T, len(t.rows))}
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return c
}

// ids returns the row IDs in insertion order
func (t *table[T]) ids() []uint {
	ids := make([]uint, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type state struct {
	users         *table[models.User]
	userRoles     *table[models.UserRole]
	loans         *table[models.Loan]
	disbursements *table[models.Disbursement]
	stageDefs     *table[models.ApprovalStageDefinition]
	requests      *table[models.ApprovalRequest]
	stages        *table[models.StageExecution]
	schedule      *table[models.ScheduleEntry]
	payments      *table[models.Payment]
	lateFees      *table[models.LateFee]
	audit         *table[models.AuditLog]
	notifications *table[models.Notification]
}

func newState() *state {
	return &state{
		users:         newTable[models.User](),
		userRoles:     newTable[models.UserRole](),
		loans:         newTable[models.Loan](),
		disbursements: newTable[models.Disbursement](),
		stageDefs:     newTable[models.ApprovalStageDefinition](),
		requests:      newTable[models.ApprovalRequest](),
		stages:        newTable[models.StageExecution](),
		schedule:      newTable[models.ScheduleEntry](),
		payments:      newTable[models.Payment](),
		lateFees:      newTable[models.LateFee](),
		audit:         newTable[models.AuditLog](),
		notifications: newTable[models.Notification](),
	}
}

func (s *state) clone() *state {
	return &state{
		users:         s.users.clone(),
		userRoles:     s.userRoles.clone(),
		loans:         s.loans.clone(),
		disbursements: s.disbursements.clone(),
		stageDefs:     s.stageDefs.clone(),
		requests:      s.requests.clone(),
		stages:        s.stages.clone(),
		schedule:      s.schedule.clone(),
		payments:      s.payments.clone(),
		lateFees:      s.lateFees.clone(),
		audit:         s.audit.clone(),
		notifications: s.notifications.clone(),
	}
}

// Store is a goroutine-safe in-memory store
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock overrides the timestamp source used for created/updated columns
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// view binds repositories either to the live store (locking per call) or
// to the private state of an open transaction.
type view struct {
	root *Store
	tx   *state
}

func (v *view) do(fn func(st *state) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.root.mu.Lock()
	defer v.root.mu.Unlock()
	return fn(v.root.state)
}

func (v *view) now() time.Time {
	return v.root.now()
}

func (s *Store) view() *view { return &view{root: s} }

func (s *Store) Users() repositories.UserRepository                 { return s.view().Users() }
func (s *Store) Loans() repositories.LoanRepository                 { return s.view().Loans() }
func (s *Store) Disbursements() repositories.DisbursementRepository { return s.view().Disbursements() }
func (s *Store) Approvals() repositories.ApprovalRepository         { return s.view().Approvals() }
func (s *Store) Schedules() repositories.ScheduleRepository         { return s.view().Schedules() }
func (s *Store) Payments() repositories.PaymentRepository           { return s.view().Payments() }
func (s *Store) LateFees() repositories.LateFeeRepository           { return s.view().LateFees() }
func (s *Store) Audit() repositories.AuditRepository                { return s.view().Audit() }
func (s *Store) Notifications() repositories.NotificationRepository { return s.view().Notifications() }

// Transaction runs fn against a copy of the data and commits it when fn
// returns nil. Transactions are serialized.
func (s *Store) Transaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(&txStore{view: &view{root: s, tx: working}}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// txStore is the Store handed to a transaction callback
type txStore struct {
	*view
}

// Transaction inside a transaction joins the outer one
func (t *txStore) Transaction(_ context.Context, fn func(tx repositories.Store) error) error {
	return fn(t)
}

func (v *view) Users() repositories.UserRepository                 { return &userRepo{v} }
func (v *view) Loans() repositories.LoanRepository                 { return &loanRepo{v} }
func (v *view) Disbursements() repositories.DisbursementRepository { return &disbursementRepo{v} }
func (v *view) Approvals() repositories.ApprovalRepository         { return &approvalRepo{v} }
func (v *view) Schedules() repositories.ScheduleRepository         { return &scheduleRepo{v} }
func (v *view) Payments() repositories.PaymentRepository           { return &paymentRepo{v} }
func (v *view) LateFees() repositories.LateFeeRepository           { return &lateFeeRepo{v} }
func (v *view) Audit() repositories.AuditRepository                { return &auditRepo{v} }
func (v *view) Notifications() repositories.NotificationRepository { return &notificationRepo{v} }

var (
	_ repositories.Store = (*Store)(nil)
	_ repositories.Store = (*txStore)(nil)
)
