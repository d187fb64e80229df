package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"namlend/internal/adapters/persistence/models"
	"namlend/internal/adapters/persistence/repositories"
	"namlend/internal/core/domain"

	"gorm.io/gorm"
)

// ============================================================
// Users
// ============================================================

type userRepo struct{ v *view }

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	return r.v.do(func(st *state) error {
		for _, u := range st.users.rows {
			if strings.EqualFold(u.Email, user.Email) {
				return gorm.ErrDuplicatedKey
			}
		}
		user.ID = st.users.next()
		user.CreatedAt, user.UpdatedAt = r.v.now(), r.v.now()
		roles := user.Roles
		row := *user
		row.Roles = nil
		st.users.rows[user.ID] = row
		for i := range roles {
			roles[i].UserID = user.ID
			roles[i].ID = st.userRoles.next()
			roles[i].CreatedAt = r.v.now()
			st.userRoles.rows[roles[i].ID] = roles[i]
		}
		return nil
	})
}

func (r *userRepo) withRoles(st *state, u models.User) *models.User {
	for _, id := range st.userRoles.ids() {
		if ur := st.userRoles.rows[id]; ur.UserID == u.ID {
			u.Roles = append(u.Roles, ur)
		}
	}
	return &u
}

func (r *userRepo) GetByID(_ context.Context, id uint) (*models.User, error) {
	var out *models.User
	err := r.v.do(func(st *state) error {
		u, ok := st.users.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = r.withRoles(st, u)
		return nil
	})
	return out, err
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var out *models.User
	err := r.v.do(func(st *state) error {
		for _, id := range st.users.ids() {
			if u := st.users.rows[id]; strings.EqualFold(u.Email, email) {
				out = r.withRoles(st, u)
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (r *userRepo) GetRoles(_ context.Context, userID uint) (domain.RoleSet, error) {
	var set domain.RoleSet
	err := r.v.do(func(st *state) error {
		for _, ur := range st.userRoles.rows {
			if ur.UserID != userID {
				continue
			}
			if role, err := domain.ParseRole(ur.Role); err == nil {
				set = set.With(role)
			}
		}
		return nil
	})
	return set, err
}

func (r *userRepo) AddRole(_ context.Context, userID uint, role domain.Role, grantedBy uint) error {
	return r.v.do(func(st *state) error {
		addRole(st, userID, role, grantedBy, r.v.now())
		return nil
	})
}

func addRole(st *state, userID uint, role domain.Role, grantedBy uint, now time.Time) {
	for _, ur := range st.userRoles.rows {
		if ur.UserID == userID && ur.Role == role.String() {
			return
		}
	}
	by := grantedBy
	id := st.userRoles.next()
	st.userRoles.rows[id] = models.UserRole{ID: id, UserID: userID, Role: role.String(), GrantedBy: &by, CreatedAt: now}
}

func (r *userRepo) RemoveRole(_ context.Context, userID uint, role domain.Role) error {
	return r.v.do(func(st *state) error {
		for id, ur := range st.userRoles.rows {
			if ur.UserID == userID && ur.Role == role.String() {
				delete(st.userRoles.rows, id)
			}
		}
		return nil
	})
}

func (r *userRepo) ReplaceRoles(_ context.Context, userID uint, roles domain.RoleSet, grantedBy uint) error {
	return r.v.do(func(st *state) error {
		for id, ur := range st.userRoles.rows {
			if ur.UserID == userID {
				delete(st.userRoles.rows, id)
			}
		}
		for _, role := range roles.Roles() {
			addRole(st, userID, role, grantedBy, r.v.now())
		}
		return nil
	})
}

// ============================================================
// Loans & Disbursements
// ============================================================

type loanRepo struct{ v *view }

func (r *loanRepo) Create(_ context.Context, loan *models.Loan) error {
	return r.v.do(func(st *state) error {
		loan.ID = st.loans.next()
		loan.CreatedAt, loan.UpdatedAt = r.v.now(), r.v.now()
		st.loans.rows[loan.ID] = *loan
		return nil
	})
}

func (r *loanRepo) GetByID(_ context.Context, id uint) (*models.Loan, error) {
	var out models.Loan
	err := r.v.do(func(st *state) error {
		l, ok := st.loans.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *loanRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *loanRepo) Update(_ context.Context, loan *models.Loan) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.loans.rows[loan.ID]; !ok {
			return repositories.ErrNotFound
		}
		loan.UpdatedAt = r.v.now()
		st.loans.rows[loan.ID] = *loan
		return nil
	})
}

type disbursementRepo struct{ v *view }

func (r *disbursementRepo) Create(_ context.Context, d *models.Disbursement) error {
	return r.v.do(func(st *state) error {
		for _, existing := range st.disbursements.rows {
			if existing.ReferenceCode == d.ReferenceCode {
				return gorm.ErrDuplicatedKey
			}
		}
		d.ID = st.disbursements.next()
		d.CreatedAt, d.UpdatedAt = r.v.now(), r.v.now()
		st.disbursements.rows[d.ID] = *d
		return nil
	})
}

func (r *disbursementRepo) GetByID(_ context.Context, id uint) (*models.Disbursement, error) {
	var out models.Disbursement
	err := r.v.do(func(st *state) error {
		d, ok := st.disbursements.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *disbursementRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.Disbursement, error) {
	return r.GetByID(ctx, id)
}

func (r *disbursementRepo) FindActiveByLoan(_ context.Context, loanID uint) (*models.Disbursement, error) {
	var out *models.Disbursement
	err := r.v.do(func(st *state) error {
		ids := st.disbursements.ids()
		for i := len(ids) - 1; i >= 0; i-- {
			d := st.disbursements.rows[ids[i]]
			if d.LoanID == loanID && d.Status != string(domain.DisbursementFailed) {
				out = &d
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (r *disbursementRepo) Update(_ context.Context, d *models.Disbursement) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.disbursements.rows[d.ID]; !ok {
			return repositories.ErrNotFound
		}
		d.UpdatedAt = r.v.now()
		st.disbursements.rows[d.ID] = *d
		return nil
	})
}

func (r *disbursementRepo) ListByStatus(_ context.Context, statuses []string, offset, limit int) ([]*models.Disbursement, int64, error) {
	var matched []*models.Disbursement
	err := r.v.do(func(st *state) error {
		for _, id := range st.disbursements.ids() {
			d := st.disbursements.rows[id]
			if contains(statuses, d.Status) {
				matched = append(matched, &d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	return page(matched, offset, limit), int64(len(matched)), nil
}

// ============================================================
// Approval workflow
// ============================================================

type approvalRepo struct{ v *view }

func (r *approvalRepo) CreateStageDefinition(_ context.Context, def *models.ApprovalStageDefinition) error {
	return r.v.do(func(st *state) error {
		for _, d := range st.stageDefs.rows {
			if d.RequestType == def.RequestType && d.Sequence == def.Sequence {
				return gorm.ErrDuplicatedKey
			}
		}
		def.ID = st.stageDefs.next()
		def.CreatedAt, def.UpdatedAt = r.v.now(), r.v.now()
		st.stageDefs.rows[def.ID] = *def
		return nil
	})
}

func (r *approvalRepo) ListStageDefinitions(_ context.Context, requestType string) ([]*models.ApprovalStageDefinition, error) {
	var defs []*models.ApprovalStageDefinition
	err := r.v.do(func(st *state) error {
		for _, id := range st.stageDefs.ids() {
			d := st.stageDefs.rows[id]
			if d.RequestType == requestType && d.IsActive {
				defs = append(defs, &d)
			}
		}
		return nil
	})
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Sequence < defs[j].Sequence })
	return defs, err
}

func (r *approvalRepo) CreateRequest(_ context.Context, req *models.ApprovalRequest) error {
	return r.v.do(func(st *state) error {
		req.ID = st.requests.next()
		req.CreatedAt, req.UpdatedAt = r.v.now(), r.v.now()
		row := *req
		row.Stages = nil
		st.requests.rows[req.ID] = row
		return nil
	})
}

func (r *approvalRepo) GetRequest(_ context.Context, id uint) (*models.ApprovalRequest, error) {
	var out models.ApprovalRequest
	err := r.v.do(func(st *state) error {
		req, ok := st.requests.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		req.Stages = nil
		for _, s := range stagesOf(st, id) {
			req.Stages = append(req.Stages, *s)
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *approvalRepo) GetRequestForUpdate(_ context.Context, id uint) (*models.ApprovalRequest, error) {
	var out models.ApprovalRequest
	err := r.v.do(func(st *state) error {
		req, ok := st.requests.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *approvalRepo) FindOpenRequest(_ context.Context, requestType string, referenceID uint) (*models.ApprovalRequest, error) {
	var out *models.ApprovalRequest
	err := r.v.do(func(st *state) error {
		for _, id := range st.requests.ids() {
			req := st.requests.rows[id]
			if req.RequestType == requestType && req.ReferenceID == referenceID && req.Status == string(domain.RequestInProgress) {
				out = &req
				return nil
			}
		}
		return repositories.ErrNotFound
	})
	return out, err
}

func (r *approvalRepo) UpdateRequest(_ context.Context, req *models.ApprovalRequest) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.requests.rows[req.ID]; !ok {
			return repositories.ErrNotFound
		}
		req.UpdatedAt = r.v.now()
		row := *req
		row.Stages = nil
		st.requests.rows[req.ID] = row
		return nil
	})
}

func (r *approvalRepo) CreateStage(_ context.Context, stage *models.StageExecution) error {
	return r.v.do(func(st *state) error {
		stage.ID = st.stages.next()
		stage.CreatedAt, stage.UpdatedAt = r.v.now(), r.v.now()
		st.stages.rows[stage.ID] = *stage
		return nil
	})
}

func (r *approvalRepo) GetStage(_ context.Context, id uint) (*models.StageExecution, error) {
	var out models.StageExecution
	err := r.v.do(func(st *state) error {
		s, ok := st.stages.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *approvalRepo) GetStageForUpdate(ctx context.Context, id uint) (*models.StageExecution, error) {
	return r.GetStage(ctx, id)
}

func (r *approvalRepo) UpdateStage(_ context.Context, stage *models.StageExecution) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.stages.rows[stage.ID]; !ok {
			return repositories.ErrNotFound
		}
		stage.UpdatedAt = r.v.now()
		st.stages.rows[stage.ID] = *stage
		return nil
	})
}

func (r *approvalRepo) ListStages(_ context.Context, requestID uint) ([]*models.StageExecution, error) {
	var out []*models.StageExecution
	err := r.v.do(func(st *state) error {
		out = stagesOf(st, requestID)
		return nil
	})
	return out, err
}

func stagesOf(st *state, requestID uint) []*models.StageExecution {
	var out []*models.StageExecution
	for _, id := range st.stages.ids() {
		s := st.stages.rows[id]
		if s.RequestID == requestID {
			out = append(out, &s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// ============================================================
// Schedule, payments & late fees
// ============================================================

type scheduleRepo struct{ v *view }

func (r *scheduleRepo) CountByLoan(_ context.Context, loanID uint) (int64, error) {
	var n int64
	err := r.v.do(func(st *state) error {
		for _, e := range st.schedule.rows {
			if e.LoanID == loanID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *scheduleRepo) CreateBatch(_ context.Context, entries []*models.ScheduleEntry) error {
	return r.v.do(func(st *state) error {
		for _, e := range entries {
			for _, existing := range st.schedule.rows {
				if existing.LoanID == e.LoanID && existing.InstallmentNumber == e.InstallmentNumber {
					return gorm.ErrDuplicatedKey
				}
			}
			e.ID = st.schedule.next()
			e.CreatedAt, e.UpdatedAt = r.v.now(), r.v.now()
			st.schedule.rows[e.ID] = *e
		}
		return nil
	})
}

func (r *scheduleRepo) ListByLoan(_ context.Context, loanID uint) ([]*models.ScheduleEntry, error) {
	var out []*models.ScheduleEntry
	err := r.v.do(func(st *state) error {
		for _, id := range st.schedule.ids() {
			e := st.schedule.rows[id]
			if e.LoanID == loanID {
				out = append(out, &e)
			}
		}
		return nil
	})
	sortByDue(out)
	return out, err
}

func (r *scheduleRepo) ListByLoanForUpdate(ctx context.Context, loanID uint) ([]*models.ScheduleEntry, error) {
	return r.ListByLoan(ctx, loanID)
}

func (r *scheduleRepo) GetByID(_ context.Context, id uint) (*models.ScheduleEntry, error) {
	var out models.ScheduleEntry
	err := r.v.do(func(st *state) error {
		e, ok := st.schedule.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *scheduleRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.ScheduleEntry, error) {
	return r.GetByID(ctx, id)
}

func (r *scheduleRepo) ListDueBefore(_ context.Context, cutoff time.Time, statuses []string) ([]*models.ScheduleEntry, error) {
	var out []*models.ScheduleEntry
	err := r.v.do(func(st *state) error {
		for _, id := range st.schedule.ids() {
			e := st.schedule.rows[id]
			if e.DueDate.Before(cutoff) && contains(statuses, e.Status) {
				out = append(out, &e)
			}
		}
		return nil
	})
	sortByDue(out)
	return out, err
}

func (r *scheduleRepo) Update(_ context.Context, entry *models.ScheduleEntry) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.schedule.rows[entry.ID]; !ok {
			return repositories.ErrNotFound
		}
		entry.UpdatedAt = r.v.now()
		st.schedule.rows[entry.ID] = *entry
		return nil
	})
}

func sortByDue(entries []*models.ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].DueDate.Equal(entries[j].DueDate) {
			return entries[i].DueDate.Before(entries[j].DueDate)
		}
		return entries[i].InstallmentNumber < entries[j].InstallmentNumber
	})
}

type paymentRepo struct{ v *view }

func (r *paymentRepo) Create(_ context.Context, p *models.Payment) error {
	return r.v.do(func(st *state) error {
		p.ID = st.payments.next()
		p.CreatedAt, p.UpdatedAt = r.v.now(), r.v.now()
		st.payments.rows[p.ID] = *p
		return nil
	})
}

func (r *paymentRepo) GetByID(_ context.Context, id uint) (*models.Payment, error) {
	var out models.Payment
	err := r.v.do(func(st *state) error {
		p, ok := st.payments.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *paymentRepo) GetByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *paymentRepo) Update(_ context.Context, p *models.Payment) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.payments.rows[p.ID]; !ok {
			return repositories.ErrNotFound
		}
		p.UpdatedAt = r.v.now()
		st.payments.rows[p.ID] = *p
		return nil
	})
}

type lateFeeRepo struct{ v *view }

func (r *lateFeeRepo) Create(_ context.Context, fee *models.LateFee) error {
	return r.v.do(func(st *state) error {
		fee.ID = st.lateFees.next()
		fee.CreatedAt = r.v.now()
		st.lateFees.rows[fee.ID] = *fee
		return nil
	})
}

func (r *lateFeeRepo) GetByIDForUpdate(_ context.Context, id uint) (*models.LateFee, error) {
	var out models.LateFee
	err := r.v.do(func(st *state) error {
		f, ok := st.lateFees.rows[id]
		if !ok {
			return repositories.ErrNotFound
		}
		out = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *lateFeeRepo) ListBySchedule(_ context.Context, scheduleID uint) ([]*models.LateFee, error) {
	var out []*models.LateFee
	err := r.v.do(func(st *state) error {
		for _, id := range st.lateFees.ids() {
			f := st.lateFees.rows[id]
			if f.ScheduleID == scheduleID {
				out = append(out, &f)
			}
		}
		return nil
	})
	return out, err
}

func (r *lateFeeRepo) Update(_ context.Context, fee *models.LateFee) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.lateFees.rows[fee.ID]; !ok {
			return repositories.ErrNotFound
		}
		st.lateFees.rows[fee.ID] = *fee
		return nil
	})
}

// ============================================================
// Audit & notifications
// ============================================================

type auditRepo struct{ v *view }

func (r *auditRepo) Append(_ context.Context, entry *models.AuditLog) error {
	return r.v.do(func(st *state) error {
		entry.ID = st.audit.next()
		entry.CreatedAt = r.v.now()
		st.audit.rows[entry.ID] = *entry
		return nil
	})
}

func (r *auditRepo) ListByEntity(_ context.Context, entityType string, entityID uint) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	err := r.v.do(func(st *state) error {
		ids := st.audit.ids()
		for i := len(ids) - 1; i >= 0; i-- {
			a := st.audit.rows[ids[i]]
			if a.EntityType == entityType && a.EntityID == entityID {
				out = append(out, &a)
			}
		}
		return nil
	})
	return out, err
}

type notificationRepo struct{ v *view }

func (r *notificationRepo) Create(_ context.Context, n *models.Notification) error {
	return r.v.do(func(st *state) error {
		n.ID = st.notifications.next()
		n.CreatedAt = r.v.now()
		st.notifications.rows[n.ID] = *n
		return nil
	})
}

func (r *notificationRepo) ListByUser(_ context.Context, userID uint, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	err := r.v.do(func(st *state) error {
		ids := st.notifications.ids()
		for i := len(ids) - 1; i >= 0; i-- {
			n := st.notifications.rows[ids[i]]
			if n.UserID == userID {
				out = append(out, &n)
			}
		}
		return nil
	})
	return page(out, 0, limit), err
}

// ============================================================
// Helpers
// ============================================================

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
