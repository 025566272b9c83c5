// File: internal/usecase/queue_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
)

func newQueue(repo *memTaskRepo, cps *memCheckpointRepo, maxAttempts int) TaskQueue {
	return NewTaskQueue(repo, cps, maxAttempts, newLogger())
}

func TestQueue_Enqueue_RejectsDuplicates(t *testing.T) {
	repo := newMemTaskRepo()
	q := newQueue(repo, newMemCheckpointRepo(), 3)
	ctx := context.Background()

	first := &model.Task{Identity: "job-123", Kind: model.ActionApplyToJob}
	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	dup := &model.Task{Identity: "job-123", Kind: model.ActionApplyToJob}
	if err := q.Enqueue(ctx, dup); !errors.Is(err, domain.ErrDuplicateTask) {
		t.Fatalf("want ErrDuplicateTask, got %v", err)
	}

	// A different kind for the same identity is allowed.
	other := &model.Task{Identity: "job-123", Kind: model.ActionScrapeJob}
	if err := q.Enqueue(ctx, other); err != nil {
		t.Fatalf("different kind: %v", err)
	}
}

func TestQueue_Enqueue_AllowsNewTaskAfterTerminal(t *testing.T) {
	repo := newMemTaskRepo()
	q := newQueue(repo, newMemCheckpointRepo(), 3)
	ctx := context.Background()

	first := &model.Task{Identity: "job-1", Kind: model.ActionApplyToJob}
	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first.State = model.TaskCompleted
	if err := repo.Save(ctx, nil, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	again := &model.Task{Identity: "job-1", Kind: model.ActionApplyToJob}
	if err := q.Enqueue(ctx, again); err != nil {
		t.Fatalf("re-enqueue after completion: %v", err)
	}
}

func TestQueue_Enqueue_ValidatesInput(t *testing.T) {
	q := newQueue(newMemTaskRepo(), newMemCheckpointRepo(), 3)
	ctx := context.Background()

	if err := q.Enqueue(ctx, &model.Task{Kind: model.ActionScrapeJob}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("missing identity: want ErrInvalidArgument, got %v", err)
	}
	if err := q.Enqueue(ctx, &model.Task{Identity: "x", Kind: "mine_bitcoin"}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("bad kind: want ErrInvalidArgument, got %v", err)
	}
}

func TestQueue_DequeueNext_PriorityThenAge(t *testing.T) {
	q := newQueue(newMemTaskRepo(), newMemCheckpointRepo(), 3)
	ctx := context.Background()

	low := &model.Task{Identity: "a", Kind: model.ActionScrapeJob, Priority: 1}
	high := &model.Task{Identity: "b", Kind: model.ActionScrapeJob, Priority: 9}
	if err := q.Enqueue(ctx, low); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if err := q.Enqueue(ctx, high); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	got, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.ID != high.ID {
		t.Fatalf("want high-priority task %s first, got %s", high.ID, got.ID)
	}
	if got.State != model.TaskInProgress {
		t.Fatalf("claimed task should be in_progress, got %s", got.State)
	}
}

func TestQueue_DequeueNext_SkipsIdentityWithInFlightWork(t *testing.T) {
	q := newQueue(newMemTaskRepo(), newMemCheckpointRepo(), 3)
	ctx := context.Background()

	first := &model.Task{Identity: "job-7", Kind: model.ActionScrapeJob, Priority: 5}
	second := &model.Task{Identity: "job-7", Kind: model.ActionApplyToJob, Priority: 9}
	other := &model.Task{Identity: "job-8", Kind: model.ActionScrapeJob, Priority: 1}
	for _, task := range []*model.Task{first, second, other} {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	// Claims the highest priority pending task: job-7/apply.
	claimed, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if claimed.ID != second.ID {
		t.Fatalf("want %s, got %s", second.ID, claimed.ID)
	}

	// job-7 now has in-flight work; the next claim must go to job-8.
	next, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if next.Identity != "job-8" {
		t.Fatalf("want job-8 while job-7 is in flight, got %s", next.Identity)
	}
}

func TestQueue_DequeueNext_EmptyDoesNotBlock(t *testing.T) {
	q := newQueue(newMemTaskRepo(), newMemCheckpointRepo(), 3)
	if _, err := q.DequeueNext(context.Background()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestQueue_ClaimCountsAttemptAndCheckpoints(t *testing.T) {
	repo := newMemTaskRepo()
	cps := newMemCheckpointRepo()
	q := newQueue(repo, cps, 3)
	ctx := context.Background()

	task := &model.Task{Identity: "job-1", Kind: model.ActionScrapeJob}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	claimed, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("claim must count as attempt 1, got %d", claimed.Attempts)
	}

	claimed.State = model.TaskFailed
	claimed.LastError = "nav timeout"
	if err := q.RequeueForRetry(ctx, claimed); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if claimed.State != model.TaskPending || claimed.Attempts != 1 {
		t.Fatalf("requeue must not change the attempt count, got %s attempt %d", claimed.State, claimed.Attempts)
	}

	states := cps.states(claimed.ID)
	want := []model.TaskState{model.TaskInProgress, model.TaskPending}
	if len(states) != len(want) || states[0] != want[0] || states[1] != want[1] {
		t.Fatalf("want checkpoints %v, got %v", want, states)
	}

	// The second claim is attempt 2.
	again, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if again.Attempts != 2 {
		t.Fatalf("want attempt 2, got %d", again.Attempts)
	}
}

func TestQueue_RequeueForRetry_EnforcesAttemptCap(t *testing.T) {
	repo := newMemTaskRepo()
	q := newQueue(repo, newMemCheckpointRepo(), 3)
	ctx := context.Background()

	task := &model.Task{Identity: "job-1", Kind: model.ActionScrapeJob}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task.State = model.TaskFailed
	task.Attempts = 3

	err := q.RequeueForRetry(ctx, task)
	if !errors.Is(err, domain.ErrRetryLimitExceeded) {
		t.Fatalf("want ErrRetryLimitExceeded, got %v", err)
	}
	stored, _ := repo.FindByID(ctx, nil, task.ID)
	if stored.State != model.TaskFailed {
		t.Fatalf("task past the cap must stay failed, got %s", stored.State)
	}
	if _, err := q.DequeueNext(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("terminal task must not be claimable, got %v", err)
	}
}

func TestQueue_Ready_SignalsOnEnqueue(t *testing.T) {
	q := newQueue(newMemTaskRepo(), newMemCheckpointRepo(), 3)

	if err := q.Enqueue(context.Background(), &model.Task{Identity: "a", Kind: model.ActionScrapeJob}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-q.Ready():
	default:
		t.Fatal("expected a ready pulse after enqueue")
	}
}
