// File: internal/infra/worker/mocks_test.go
package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	"linkedin-autopilot/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type noTx struct{}

type mockTxManager struct{}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, noTx{})
}

// memTaskRepo mirrors the SQL claim semantics in memory.
type memTaskRepo struct {
	mu     sync.Mutex
	store  map[string]*model.Task
	nextID int
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{store: make(map[string]*model.Task)}
}

func (m *memTaskRepo) Insert(ctx context.Context, _ repository.Tx, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.store {
		if t.Identity == task.Identity && t.Kind == task.Kind && !t.State.Terminal() {
			return domain.ErrDuplicateTask
		}
	}
	m.nextID++
	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%d", m.nextID)
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	cp := *task
	m.store[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) Save(ctx context.Context, _ repository.Tx, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[task.ID]; !ok {
		return domain.ErrNotFound
	}
	task.UpdatedAt = time.Now()
	cp := *task
	m.store[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) ClaimNext(ctx context.Context) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inFlight := map[string]bool{}
	for _, t := range m.store {
		if !t.State.Terminal() && t.State != model.TaskPending {
			inFlight[t.Identity] = true
		}
	}
	var candidates []*model.Task
	for _, t := range m.store {
		if t.State == model.TaskPending && !inFlight[t.Identity] {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	picked := candidates[0]
	picked.State = model.TaskInProgress
	picked.Attempts++
	picked.UpdatedAt = time.Now()
	cp := *picked
	return &cp, nil
}

func (m *memTaskRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) FindByState(ctx context.Context, _ repository.Tx, state model.TaskState) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.store {
		if t.State == state {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTaskRepo) SkipAllForIdentity(ctx context.Context, _ repository.Tx, identity, reason string) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for _, t := range m.store {
		if t.Identity == identity && !t.State.Terminal() {
			prior := *t
			t.State = model.TaskSkipped
			t.LastError = reason
			t.UpdatedAt = time.Now()
			out = append(out, &prior)
		}
	}
	return out, nil
}

func (m *memTaskRepo) CountByState(ctx context.Context) (map[model.TaskState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.TaskState]int)
	for _, t := range m.store {
		out[t.State]++
	}
	return out, nil
}

// memCheckpointRepo is an in-memory append-only checkpoint log.
type memCheckpointRepo struct {
	mu     sync.Mutex
	byTask map[string][]*model.Checkpoint
	seq    int
}

func newMemCheckpointRepo() *memCheckpointRepo {
	return &memCheckpointRepo{byTask: make(map[string][]*model.Checkpoint)}
}

func (m *memCheckpointRepo) Record(ctx context.Context, _ repository.Tx, cp *model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	c := *cp
	c.ID = fmt.Sprintf("cp-%06d", m.seq)
	c.CreatedAt = time.Now()
	m.byTask[cp.TaskID] = append(m.byTask[cp.TaskID], &c)
	return nil
}

func (m *memCheckpointRepo) LoadLatest(ctx context.Context, taskID string) (*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.byTask[taskID]
	if len(cps) == 0 {
		return nil, domain.ErrNotFound
	}
	cp := *cps[len(cps)-1]
	return &cp, nil
}

func (m *memCheckpointRepo) History(ctx context.Context, taskID string) ([]*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Checkpoint
	for _, cp := range m.byTask[taskID] {
		c := *cp
		out = append(out, &c)
	}
	return out, nil
}

func (m *memCheckpointRepo) LatestNonTerminal(ctx context.Context) ([]*model.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Checkpoint
	for _, cps := range m.byTask {
		last := cps[len(cps)-1]
		if !last.State.Terminal() {
			c := *last
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}

func (m *memCheckpointRepo) states(taskID string) []model.TaskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskState
	for _, cp := range m.byTask[taskID] {
		out = append(out, cp.State)
	}
	return out
}

// memSessionStore keeps sessions in a map.
type memSessionStore struct {
	mu    sync.Mutex
	store map[string]*model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{store: make(map[string]*model.Session)}
}

func (m *memSessionStore) Load(ctx context.Context, accountID string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[accountID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) Save(ctx context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	m.store[session.AccountID] = &cp
	return nil
}

func (m *memSessionStore) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, accountID)
	return nil
}

// memRecordSink collects emitted outcome records.
type memRecordSink struct {
	mu      sync.Mutex
	records []*model.OutcomeRecord
}

func (m *memRecordSink) Emit(ctx context.Context, _ repository.Tx, record *model.OutcomeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *record
	m.records = append(m.records, &cp)
	return nil
}

func (m *memRecordSink) FindByIdentity(ctx context.Context, identity string, limit int) ([]*model.OutcomeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.OutcomeRecord
	for _, r := range m.records {
		if r.Identity == identity {
			cp := *r
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRecordSink) all() []*model.OutcomeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.OutcomeRecord, len(m.records))
	copy(out, m.records)
	return out
}

// fakeGovernor admits everything and records penalties.
type fakeGovernor struct {
	mu        sync.Mutex
	penalties []time.Duration
}

func (f *fakeGovernor) Admit(ctx context.Context, kind model.ActionKind) error { return nil }

func (f *fakeGovernor) Penalize(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.penalties = append(f.penalties, cooldown)
	return nil
}

func (f *fakeGovernor) Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error) {
	return model.RateBudget{Kind: kind}, nil
}

func (f *fakeGovernor) Backoff(attempt int) time.Duration { return time.Millisecond }

func (f *fakeGovernor) penaltyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.penalties)
}

// fakeAlerter records alerts for assertions.
type fakeAlerter struct {
	mu     sync.Mutex
	alerts []adapter.Alert
}

func (f *fakeAlerter) Send(ctx context.Context, alert adapter.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeAlerter) bySeverity(sev adapter.AlertSeverity) []adapter.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []adapter.Alert
	for _, a := range f.alerts {
		if a.Severity == sev {
			out = append(out, a)
		}
	}
	return out
}

// fakeGenerator scripts the content adapter.
type fakeGenerator struct {
	mu    sync.Mutex
	text  string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeGenerator) ListModels(ctx context.Context) ([]string, error) {
	return []string{"fake"}, nil
}

func (f *fakeGenerator) CountTokens(ctx context.Context, req adapter.ContentRequest) (int, error) {
	return len(req.JobDescription) / 4, nil
}

func (f *fakeGenerator) Generate(ctx context.Context, req adapter.ContentRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	delay, err, text := f.delay, f.err, f.text
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
