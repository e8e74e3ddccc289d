package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"qmsgov/internal/types"
)

// memoryDB is an in-process store used by the "memory" database driver
// and by tests. Values are copied on the way in and out.
type memoryDB struct {
	mu        sync.RWMutex
	seq       int64
	events    map[string]*memoryRow[types.ChangeEvent]
	approvals map[string]*memoryRow[types.Approval]
	workflows map[string]*memoryRow[types.WorkflowDefinition]
	rules     map[string]*memoryRow[types.PropagationRule]
	users     map[string]*types.User
	audit     []*types.AuditEntry
}

type memoryRow[T any] struct {
	seq   int64
	value *T
}

// NewMemoryStore creates repositories backed by process memory
func NewMemoryStore() *Store {
	m := &memoryDB{
		events:    make(map[string]*memoryRow[types.ChangeEvent]),
		approvals: make(map[string]*memoryRow[types.Approval]),
		workflows: make(map[string]*memoryRow[types.WorkflowDefinition]),
		rules:     make(map[string]*memoryRow[types.PropagationRule]),
		users:     make(map[string]*types.User),
	}
	return &Store{
		ChangeEvents: &memoryChangeEvents{m},
		Approvals:    &memoryApprovals{m},
		Workflows:    &memoryWorkflows{m},
		Rules:        &memoryRules{m},
		Users:        &memoryUsers{m},
		Audit:        &memoryAudit{m},
	}
}

func (m *memoryDB) next() int64 {
	m.seq++
	return m.seq
}

// deepCopy copies v through its JSON form so stored values behave
// like values read back from a SQL column
func deepCopy[T any](v *T) (*T, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to copy value: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to copy value: %w", err)
	}
	return &out, nil
}

func copyApproval(a *types.Approval) *types.Approval {
	c := *a
	return &c
}

// memoryChangeEvents implements ChangeEventRepository
type memoryChangeEvents struct{ *memoryDB }

func (r *memoryChangeEvents) Create(_ context.Context, ev *types.ChangeEvent) error {
	c, err := deepCopy(ev)
	if err != nil {
		return err
	}
	c.ChangedFields = nonNil(c.ChangedFields)
	c.AffectedModules = nonNil(c.AffectedModules)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.ID]; ok {
		return fmt.Errorf("change event %s already exists", ev.ID)
	}
	r.events[ev.ID] = &memoryRow[types.ChangeEvent]{seq: r.next(), value: c}
	return nil
}

func (r *memoryChangeEvents) Get(_ context.Context, id string) (*types.ChangeEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.events[id]
	if !ok {
		return nil, types.NewNotFound("change event", id)
	}
	return deepCopy(row.value)
}

func (r *memoryChangeEvents) UpdateApprovalStatus(_ context.Context, id string, from []types.ChangeApprovalStatus, status types.ChangeApprovalStatus, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.events[id]
	if !ok {
		return types.NewNotFound("change event", id)
	}
	if len(from) > 0 && !slices.Contains(from, row.value.ApprovalStatus) {
		return fmt.Errorf("change event %s: %w", id, types.ErrInvalidTransition)
	}
	row.value.ApprovalStatus = status
	row.value.CompletedAt = nil
	if completedAt != nil {
		t := completedAt.UTC()
		row.value.CompletedAt = &t
	}
	return nil
}

func (r *memoryChangeEvents) UpdatePropagation(_ context.Context, id string, status types.PropagationStatus, errs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.events[id]
	if !ok {
		return types.NewNotFound("change event", id)
	}
	row.value.PropagationStatus = status
	row.value.PropagationErrors = slices.Clone(errs)
	return nil
}

func (r *memoryChangeEvents) List(_ context.Context, projectID string, filter types.ChangeEventFilter) ([]*types.ChangeEvent, error) {
	r.mu.RLock()
	rows := make([]*memoryRow[types.ChangeEvent], 0)
	for _, row := range r.events {
		ev := row.value
		switch {
		case ev.ProjectID != projectID,
			filter.EntityType != "" && ev.EntityType != filter.EntityType,
			filter.EntityID != "" && ev.EntityID != filter.EntityID,
			filter.ImpactLevel != "" && ev.ImpactLevel != filter.ImpactLevel,
			filter.ApprovalStatus != "" && ev.ApprovalStatus != filter.ApprovalStatus,
			filter.BatchID != "" && ev.BatchID != filter.BatchID:
			continue
		}
		rows = append(rows, row)
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].value, rows[j].value
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})
	rows = page(rows, filter.Limit, filter.Offset)

	events := make([]*types.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := deepCopy(row.value)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// memoryApprovals implements ApprovalRepository
type memoryApprovals struct{ *memoryDB }

func (r *memoryApprovals) CreateBatch(_ context.Context, approvals []*types.Approval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range approvals {
		if _, ok := r.approvals[a.ID]; ok {
			return fmt.Errorf("approval %s already exists", a.ID)
		}
		for _, row := range r.approvals {
			if row.value.ChangeEventID == a.ChangeEventID && row.value.StepNumber == a.StepNumber {
				return fmt.Errorf("approval for step %d of change event %s already exists", a.StepNumber, a.ChangeEventID)
			}
		}
	}
	for _, a := range approvals {
		r.approvals[a.ID] = &memoryRow[types.Approval]{seq: r.next(), value: copyApproval(a)}
	}
	return nil
}

func (r *memoryApprovals) Get(_ context.Context, id string) (*types.Approval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.approvals[id]
	if !ok {
		return nil, types.NewNotFound("approval", id)
	}
	return copyApproval(row.value), nil
}

func (r *memoryApprovals) ListByChangeEvent(_ context.Context, changeEventID string) ([]*types.Approval, error) {
	list := r.filter(func(a *types.Approval) bool { return a.ChangeEventID == changeEventID })
	sort.SliceStable(list, func(i, j int) bool { return list[i].StepNumber < list[j].StepNumber })
	return list, nil
}

func (r *memoryApprovals) ListOverdue(_ context.Context, now time.Time, limit int) ([]*types.Approval, error) {
	list := r.filter(func(a *types.Approval) bool { return a.Overdue(now) })
	sortByDue(list)
	return page(list, limit, 0), nil
}

func (r *memoryApprovals) ListPendingFor(_ context.Context, userID, role string) ([]*types.Approval, error) {
	list := r.filter(func(a *types.Approval) bool {
		if a.Status != types.ApprovalPending {
			return false
		}
		return a.ApproverID == userID || (a.ApproverID == "" && a.ApproverRole == role)
	})
	sortByDue(list)
	return list, nil
}

func (r *memoryApprovals) Transition(_ context.Context, id string, from []types.ApprovalStatus, update types.ApprovalUpdate) (*types.Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.approvals[id]
	if !ok {
		return nil, types.NewNotFound("approval", id)
	}
	a := row.value
	if !slices.Contains(from, a.Status) {
		return copyApproval(a), fmt.Errorf("approval %s is %s: %w", id, a.Status, types.ErrInvalidTransition)
	}

	a.Status = update.Status
	if update.DecidedBy != "" {
		a.DecidedBy = update.DecidedBy
	}
	if update.DecidedAt != nil {
		t := update.DecidedAt.UTC()
		a.DecidedAt = &t
	}
	if update.Comments != "" {
		a.Comments = update.Comments
	}
	if update.EscalatedAt != nil {
		t := update.EscalatedAt.UTC()
		a.EscalatedAt = &t
	}
	return copyApproval(a), nil
}

func (r *memoryApprovals) filter(keep func(*types.Approval) bool) []*types.Approval {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows := make([]*memoryRow[types.Approval], 0)
	for _, row := range r.approvals {
		if keep(row.value) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	list := make([]*types.Approval, 0, len(rows))
	for _, row := range rows {
		list = append(list, copyApproval(row.value))
	}
	return list
}

func sortByDue(list []*types.Approval) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].DueDate.Equal(list[j].DueDate) {
			return list[i].DueDate.Before(list[j].DueDate)
		}
		return list[i].ID < list[j].ID
	})
}

// memoryWorkflows implements WorkflowRepository
type memoryWorkflows struct{ *memoryDB }

func (r *memoryWorkflows) Create(_ context.Context, def *types.WorkflowDefinition) error {
	c, err := deepCopy(def)
	if err != nil {
		return err
	}
	if c.TriggerConditions == nil {
		c.TriggerConditions = types.Conditions{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[def.ID]; ok {
		return fmt.Errorf("workflow %s already exists", def.ID)
	}
	r.workflows[def.ID] = &memoryRow[types.WorkflowDefinition]{seq: r.next(), value: c}
	return nil
}

func (r *memoryWorkflows) Get(_ context.Context, id string) (*types.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.workflows[id]
	if !ok {
		return nil, types.NewNotFound("workflow", id)
	}
	return deepCopy(row.value)
}

func (r *memoryWorkflows) ListActive(_ context.Context, projectID string) ([]*types.WorkflowDefinition, error) {
	r.mu.RLock()
	rows := make([]*memoryRow[types.WorkflowDefinition], 0)
	for _, row := range r.workflows {
		if row.value.ProjectID == projectID && row.value.IsActive {
			rows = append(rows, row)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].value, rows[j].value
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return rows[i].seq > rows[j].seq
	})

	defs := make([]*types.WorkflowDefinition, 0, len(rows))
	for _, row := range rows {
		def, err := deepCopy(row.value)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// memoryRules implements RuleRepository
type memoryRules struct{ *memoryDB }

func (r *memoryRules) Create(_ context.Context, rule *types.PropagationRule) error {
	c := *rule
	c.FieldPatterns = slices.Clone(rule.FieldPatterns)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; ok {
		return fmt.Errorf("propagation rule %s already exists", rule.ID)
	}
	r.rules[rule.ID] = &memoryRow[types.PropagationRule]{seq: r.next(), value: &c}
	return nil
}

func (r *memoryRules) ListActive(_ context.Context, projectID string, entityType types.EntityType, kind types.ChangeKind) ([]*types.PropagationRule, error) {
	r.mu.RLock()
	rows := make([]*memoryRow[types.PropagationRule], 0)
	for _, row := range r.rules {
		rule := row.value
		if rule.ProjectID == projectID && rule.SourceEntityType == entityType &&
			rule.SourceChangeType == kind && rule.IsActive {
			rows = append(rows, row)
		}
	}
	r.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].value.Priority != rows[j].value.Priority {
			return rows[i].value.Priority < rows[j].value.Priority
		}
		return rows[i].seq < rows[j].seq
	})

	rules := make([]*types.PropagationRule, 0, len(rows))
	for _, row := range rows {
		c := *row.value
		c.FieldPatterns = slices.Clone(row.value.FieldPatterns)
		rules = append(rules, &c)
	}
	return rules, nil
}

// memoryUsers implements UserRepository
type memoryUsers struct{ *memoryDB }

func (r *memoryUsers) Get(_ context.Context, id string) (*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, types.NewNotFound("user", id)
	}
	c := *u
	return &c, nil
}

func (r *memoryUsers) ListActiveByRoles(_ context.Context, roles []string) ([]*types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]*types.User, 0)
	for _, u := range r.users {
		if u.IsActive && u.HasRole(roles...) {
			c := *u
			users = append(users, &c)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *memoryUsers) Upsert(_ context.Context, u *types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *u
	r.users[u.ID] = &c
	return nil
}

// memoryAudit implements AuditRepository
type memoryAudit struct{ *memoryDB }

func (r *memoryAudit) Append(_ context.Context, e *types.AuditEntry) error {
	c, err := deepCopy(e)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, c)
	return nil
}

func (r *memoryAudit) ListByEntity(_ context.Context, entityType, entityID string) ([]*types.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*types.AuditEntry, 0)
	for _, e := range r.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			c, err := deepCopy(e)
			if err != nil {
				return nil, err
			}
			entries = append(entries, c)
		}
	}
	return entries, nil
}

func page[T any](list []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(list) {
			return list[:0]
		}
		list = list[offset:]
	}
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}
