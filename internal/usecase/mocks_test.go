// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	"linkedin-autopilot/internal/domain/ports/repository"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// memTaskRepo is a small in-memory implementation used by unit tests.
type memTaskRepo struct {
	mu      sync.Mutex
	store   map[string]*model.Task
	nextID  int
	saveErr error // used by tests to simulate save failures
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
	if task.State == "" {
		task.State = model.TaskPending
	}
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	cp := *task
	m.store[task.ID] = &cp
	return nil
}

func (m *memTaskRepo) Save(ctx context.Context, _ repository.Tx, task *model.Task) error {
	if m.saveErr != nil {
		return m.saveErr
	}
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

// memCheckpointRepo is an append-only in-memory checkpoint log.
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

// states returns the recorded state sequence for assertions.
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

// memRateStore implements the budget window against a fake clock.
type memRateStore struct {
	mu          sync.Mutex
	now         func() time.Time
	counts      map[model.ActionKind]int
	windowEnds  map[model.ActionKind]time.Time
	cooldownEnd map[model.ActionKind]time.Time
}

func newMemRateStore(now func() time.Time) *memRateStore {
	if now == nil {
		now = time.Now
	}
	return &memRateStore{
		now:         now,
		counts:      make(map[model.ActionKind]int),
		windowEnds:  make(map[model.ActionKind]time.Time),
		cooldownEnd: make(map[model.ActionKind]time.Time),
	}
}

func (m *memRateStore) TakeToken(ctx context.Context, kind model.ActionKind, limit int, window time.Duration) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if end, ok := m.cooldownEnd[kind]; ok && now.Before(end) {
		return false, end.Sub(now), nil
	}
	if end, ok := m.windowEnds[kind]; !ok || !now.Before(end) {
		m.counts[kind] = 0
		m.windowEnds[kind] = now.Add(window)
	}
	if m.counts[kind] >= limit {
		return false, m.windowEnds[kind].Sub(now), nil
	}
	m.counts[kind]++
	return true, 0, nil
}

func (m *memRateStore) SetCooldown(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldownEnd[kind] = m.now().Add(cooldown)
	delete(m.windowEnds, kind)
	m.counts[kind] = 0
	return nil
}

func (m *memRateStore) Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := model.RateBudget{Kind: kind, Count: m.counts[kind]}
	if end, ok := m.cooldownEnd[kind]; ok && m.now().Before(end) {
		b.CooldownUntil = end
	}
	return b, nil
}

// fakeDriver is a scriptable BrowserDriver for session tests.
type fakeDriver struct {
	mu           sync.Mutex
	authErrs     []error // popped per Authenticate call; nil entry = success
	authCalls    int
	restoreCalls int
	restoreErr   error
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeDriver) Extract(ctx context.Context, specs []adapter.SelectorSpec) (map[string]string, error) {
	return map[string]string{}, nil
}

func (f *fakeDriver) SubmitForm(ctx context.Context, fields []adapter.FormField) (adapter.Confirmation, error) {
	return adapter.Confirmation{}, nil
}

func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *fakeDriver) Authenticate(ctx context.Context, accountID string) ([]model.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if len(f.authErrs) > 0 {
		err := f.authErrs[0]
		f.authErrs = f.authErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []model.Cookie{{Name: "li_at", Value: "tok"}}, nil
}

func (f *fakeDriver) RestoreCookies(ctx context.Context, cookies []model.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreCalls++
	return f.restoreErr
}

// fakeGenerator scripts the content adapter.
type fakeGenerator struct {
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
	f.calls++
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
