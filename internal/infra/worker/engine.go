// File: internal/infra/worker/engine.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"linkedin-autopilot/internal/domain"
	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/adapter"
	"linkedin-autopilot/internal/domain/ports/repository"
	"linkedin-autopilot/internal/infra/logging"
	"linkedin-autopilot/internal/infra/metrics"
	"linkedin-autopilot/internal/usecase"
)

// Page selectors the action handlers work against. The sim driver serves the
// same names, so tests and dry runs share this table.
var (
	profileSelectors = []adapter.SelectorSpec{
		{Name: "name", Selector: "main h1"},
		{Name: "headline", Selector: ".text-body-medium.break-words"},
		{Name: "about", Selector: "#about ~ .display-flex .inline-show-more-text", Optional: true},
	}
	jobSelectors = []adapter.SelectorSpec{
		{Name: "title", Selector: ".job-details-jobs-unified-top-card__job-title"},
		{Name: "company", Selector: ".job-details-jobs-unified-top-card__company-name"},
		{Name: "description", Selector: "#job-details"},
	}
	appliedMarker = adapter.SelectorSpec{
		Name:     "applied",
		Selector: ".artdeco-inline-feedback--success",
		Optional: true,
	}
)

// EngineParams collects the engine's collaborators.
type EngineParams struct {
	Queue       usecase.TaskQueue
	Governor    usecase.RateGovernor
	Sessions    usecase.SessionManager
	Content     usecase.ContentService
	Browser     adapter.BrowserDriver
	Tasks       repository.TaskRepository
	Checkpoints repository.CheckpointRepository
	Sink        repository.RecordSink
	TxManager   repository.TransactionManager
	Alerter     adapter.Alerter

	AccountID         string
	TaskTimeout       time.Duration
	DetectionCooldown time.Duration
	PollInterval      time.Duration
}

// Engine claims tasks and drives each one through its state transitions,
// checkpointing before every advance so a crash can resume where it stopped.
type Engine struct {
	queue       usecase.TaskQueue
	governor    usecase.RateGovernor
	sessions    usecase.SessionManager
	content     usecase.ContentService
	browser     adapter.BrowserDriver
	tasks       repository.TaskRepository
	checkpoints repository.CheckpointRepository
	sink        repository.RecordSink
	tm          repository.TransactionManager
	alerter     adapter.Alerter

	accountID         string
	taskTimeout       time.Duration
	detectionCooldown time.Duration
	pollInterval      time.Duration

	paused atomic.Bool
	log    *zerolog.Logger
}

func NewEngine(p EngineParams, logger *zerolog.Logger) *Engine {
	if p.TaskTimeout <= 0 {
		p.TaskTimeout = 5 * time.Minute
	}
	if p.DetectionCooldown <= 0 {
		p.DetectionCooldown = 30 * time.Minute
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 500 * time.Millisecond
	}
	eLog := logger.With().Str("component", "Engine").Logger()
	return &Engine{
		queue:       p.Queue,
		governor:    p.Governor,
		sessions:    p.Sessions,
		content:     p.Content,
		browser:     p.Browser,
		tasks:       p.Tasks,
		checkpoints: p.Checkpoints,
		sink:        p.Sink,
		tm:          p.TxManager,
		alerter:     p.Alerter,

		accountID:         p.AccountID,
		taskTimeout:       p.TaskTimeout,
		detectionCooldown: p.DetectionCooldown,
		pollInterval:      p.PollInterval,
		log:               &eLog,
	}
}

// Start runs the claim loop until ctx is cancelled. Claimed tasks execute on
// the pool; cancelling ctx stops claiming but lets in-flight tasks finish
// their current transition (checkpoints are written on a detached context).
func (e *Engine) Start(ctx context.Context, pool *Pool) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()
	e.log.Info().Str("account", e.accountID).Msg("engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopping")
			return
		case <-ticker.C:
		case <-e.queue.Ready():
		}
		if e.paused.Load() {
			continue
		}
		if err := pool.Submit(func(jobCtx context.Context) error {
			e.claimAndRun(jobCtx)
			return nil
		}); err != nil {
			e.log.Debug().Err(err).Msg("submit skipped")
		}
	}
}

// Resume hands recovered tasks straight to the pool, ahead of fresh claims.
func (e *Engine) Resume(tasks []*model.Task, pool *Pool) {
	for _, t := range tasks {
		task := t
		_ = pool.Submit(func(jobCtx context.Context) error {
			e.runTask(jobCtx, task)
			return nil
		})
	}
}

// Pause stops the engine from claiming new tasks. In-flight tasks finish.
func (e *Engine) Pause()         { e.paused.Store(true) }
func (e *Engine) Unpause()       { e.paused.Store(false) }
func (e *Engine) IsPaused() bool { return e.paused.Load() }

func (e *Engine) claimAndRun(ctx context.Context) {
	task, err := e.queue.DequeueNext(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.log.Error().Err(err).Msg("claim failed")
		}
		return
	}
	e.runTask(ctx, task)
}

func (e *Engine) runTask(ctx context.Context, task *model.Task) {
	ctx = logging.WithTaskID(ctx, task.ID)
	ctx = logging.WithIdentity(ctx, task.Identity)
	ctx = logging.WithAccount(ctx, e.accountID)
	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	start := time.Now()
	err := e.execute(taskCtx, task)
	logging.With(ctx, e.log).Debug().
		Str("kind", string(task.Kind)).
		Str("state", string(task.State)).
		Dur("duration", time.Since(start)).
		Err(err).
		Msg("task processed")
	metrics.ObserveTaskDuration(string(task.Kind), float64(time.Since(start).Milliseconds()))

	if err != nil {
		e.fail(ctx, task, err)
		return
	}
	metrics.IncTaskProcessed(string(task.Kind), string(task.State))
}

// execute drives the task from its current state to a terminal one. Claimed
// tasks enter at InProgress; tasks resumed after a crash may carry a
// RequiresVerification flag that changes how submission is handled.
func (e *Engine) execute(ctx context.Context, task *model.Task) error {
	logging.With(ctx, e.log).Info().
		Str("kind", string(task.Kind)).
		Int("attempt", task.Attempts).
		Msg("executing task")

	if err := e.governor.Admit(ctx, task.Kind); err != nil {
		return err
	}

	sess, err := e.sessions.Acquire(ctx, e.accountID)
	if err != nil {
		return err
	}
	defer e.sessions.Release(context.Background(), sess)

	switch task.Kind {
	case model.ActionScrapeProfile, model.ActionScrapeJob:
		return e.runScrape(ctx, task)
	case model.ActionGenerateContent:
		return e.runGenerate(ctx, task)
	case model.ActionApplyToJob:
		return e.runApply(ctx, task)
	default:
		return fmt.Errorf("%w: unknown action kind %q", domain.ErrInvalidArgument, task.Kind)
	}
}

func (e *Engine) runScrape(ctx context.Context, task *model.Task) error {
	if err := e.transition(ctx, task, model.TaskSubmitting, ""); err != nil {
		return err
	}
	if err := e.browser.Navigate(ctx, task.Payload.TargetURL); err != nil {
		return err
	}

	specs := profileSelectors
	recordKind := model.RecordScrapedProfile
	if task.Kind == model.ActionScrapeJob {
		specs = jobSelectors
		recordKind = model.RecordScrapedJob
	}
	data, err := e.browser.Extract(ctx, specs)
	if err != nil {
		return err
	}
	return e.complete(ctx, task, &model.OutcomeRecord{
		TaskID:   task.ID,
		Identity: task.Identity,
		Kind:     recordKind,
		Fields:   data,
	})
}

func (e *Engine) runGenerate(ctx context.Context, task *model.Task) error {
	text, err := e.content.Generate(ctx, task)
	if err != nil {
		return err
	}
	if err := e.transition(ctx, task, model.TaskSubmitting, ""); err != nil {
		return err
	}
	return e.complete(ctx, task, &model.OutcomeRecord{
		TaskID:   task.ID,
		Identity: task.Identity,
		Kind:     model.RecordGeneratedContent,
		Fields:   map[string]string{"text": text},
	})
}

func (e *Engine) runApply(ctx context.Context, task *model.Task) error {
	if task.State == model.TaskInProgress {
		if err := e.transition(ctx, task, model.TaskAwaitingContent, ""); err != nil {
			return err
		}
	}
	text, err := e.content.Generate(ctx, task)
	if err != nil {
		return err
	}
	if err := e.transition(ctx, task, model.TaskSubmitting, ""); err != nil {
		return err
	}
	if err := e.browser.Navigate(ctx, task.Payload.TargetURL); err != nil {
		return err
	}

	// After an interrupted submission we cannot know whether the click
	// landed. Check the page before submitting again.
	if task.RequiresVerification {
		data, verr := e.browser.Extract(ctx, []adapter.SelectorSpec{appliedMarker})
		if verr != nil {
			return verr
		}
		if data["applied"] != "" {
			logging.With(ctx, e.log).Info().Msg("submission already confirmed, skipping resubmit")
			return e.complete(ctx, task, &model.OutcomeRecord{
				TaskID:   task.ID,
				Identity: task.Identity,
				Kind:     model.RecordApplicationOutcome,
				Fields:   map[string]string{"status": "verified_existing"},
			})
		}
	}

	conf, err := e.browser.SubmitForm(ctx, []adapter.FormField{
		{Selector: "textarea[name=coverLetter]", Value: text},
		{Selector: "button[aria-label='Submit application']"},
	})
	if err != nil {
		return err
	}
	return e.complete(ctx, task, &model.OutcomeRecord{
		TaskID:   task.ID,
		Identity: task.Identity,
		Kind:     model.RecordApplicationOutcome,
		Fields: map[string]string{
			"status":    "submitted",
			"reference": conf.Reference,
			"message":   conf.Message,
		},
	})
}

// transition validates the edge, then persists the task row and its
// checkpoint in one transaction. A detached context is used so a shutdown in
// the middle of a step never leaves the row and the checkpoint log disagreeing.
func (e *Engine) transition(ctx context.Context, task *model.Task, next model.TaskState, lastErr string) error {
	if !task.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.State, next)
	}
	task.State = next
	task.LastError = lastErr
	cpCtx := context.Background()
	return e.tm.WithTx(cpCtx, pgx.TxOptions{}, func(c context.Context, tx repository.Tx) error {
		if err := e.tasks.Save(c, tx, task); err != nil {
			return err
		}
		return e.checkpoints.Record(c, tx, &model.Checkpoint{
			TaskID:    task.ID,
			State:     next,
			Attempt:   task.Attempts,
			LastError: lastErr,
		})
	})
}

// complete moves the task to Completed and emits its outcome record
// atomically with the final checkpoint.
func (e *Engine) complete(ctx context.Context, task *model.Task, rec *model.OutcomeRecord) error {
	if !task.State.CanTransition(model.TaskCompleted) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, task.State, model.TaskCompleted)
	}
	task.State = model.TaskCompleted
	task.LastError = ""
	task.RequiresVerification = false
	cpCtx := context.Background()
	return e.tm.WithTx(cpCtx, pgx.TxOptions{}, func(c context.Context, tx repository.Tx) error {
		if err := e.tasks.Save(c, tx, task); err != nil {
			return err
		}
		if err := e.checkpoints.Record(c, tx, &model.Checkpoint{
			TaskID:  task.ID,
			State:   model.TaskCompleted,
			Attempt: task.Attempts,
		}); err != nil {
			return err
		}
		return e.sink.Emit(c, tx, rec)
	})
}

// fail classifies the error and applies the matching policy.
func (e *Engine) fail(ctx context.Context, task *model.Task, cause error) {
	// A cancelled run is not a failure: the task stays at its last
	// checkpoint and recovery picks it up on the next start.
	if errors.Is(cause, context.Canceled) {
		logging.With(ctx, e.log).Warn().Str("state", string(task.State)).Msg("task interrupted, leaving checkpoint for recovery")
		return
	}

	switch {
	case errors.Is(cause, domain.ErrTargetGone):
		// The posting or profile no longer exists; retrying cannot help,
		// and neither can any sibling task for the same target.
		logging.With(ctx, e.log).Info().Err(cause).Msg("target gone, skipping task")
		if err := e.transition(ctx, task, model.TaskSkipped, cause.Error()); err != nil {
			e.log.Error().Err(err).Str("task_id", task.ID).Msg("skip transition failed")
		}
		if n, err := e.skipSiblings(task.Identity, cause.Error()); err != nil {
			e.log.Error().Err(err).Str("identity", task.Identity).Msg("sibling skip failed")
		} else if n > 0 {
			logging.With(ctx, e.log).Info().Int("count", n).Msg("skipped sibling tasks for vanished target")
		}
		metrics.IncTaskProcessed(string(task.Kind), string(model.TaskSkipped))

	case errors.Is(cause, domain.ErrAccountBlocked), errors.Is(cause, domain.ErrAuthenticationFailed):
		e.failAccount(ctx, task, cause)

	case errors.Is(cause, domain.ErrLayoutChanged), errors.Is(cause, domain.ErrSubmissionUnaligned):
		// Structural: the site changed under us. No retry can succeed
		// until the selectors are updated. Capture the page for review.
		if shot, serr := e.browser.Screenshot(ctx); serr == nil {
			logging.With(ctx, e.log).Error().Err(cause).Int("screenshot_bytes", len(shot)).Msg("structural failure")
		} else {
			logging.With(ctx, e.log).Error().Err(cause).AnErr("screenshot_error", serr).Msg("structural failure")
		}
		e.terminalFail(ctx, task, cause)
		e.alert(ctx, adapter.Alert{
			Severity: adapter.AlertCritical,
			TaskID:   task.ID,
			Identity: task.Identity,
			Message:  fmt.Sprintf("structural failure, selectors need review: %v", cause),
		})

	case errors.Is(cause, domain.ErrDetectionChallenge):
		logging.With(ctx, e.log).Warn().Err(cause).Msg("detection challenge, cooling down")
		if err := e.governor.Penalize(ctx, task.Kind, e.detectionCooldown); err != nil {
			e.log.Error().Err(err).Msg("penalize failed")
		}
		e.alert(ctx, adapter.Alert{
			Severity: adapter.AlertWarning,
			TaskID:   task.ID,
			Identity: task.Identity,
			Message:  fmt.Sprintf("detection challenge encountered: %v", cause),
		})
		e.retry(ctx, task, cause)

	default:
		// Transient: network, timeouts, missing elements, content
		// generation failures. Retry with backoff if attempts remain.
		logging.With(ctx, e.log).Warn().Err(cause).Msg("transient failure")
		e.retry(ctx, task, cause)
	}
}

// skipSiblings cascades a vanished target to every other non-terminal task
// of the identity, extending each claimed sibling's checkpoint trail to
// Skipped in the same transaction. Pending siblings have no trail yet and
// get none: only the task row records their skip.
func (e *Engine) skipSiblings(identity, reason string) (int, error) {
	var siblings []*model.Task
	err := e.tm.WithTx(context.Background(), pgx.TxOptions{}, func(c context.Context, tx repository.Tx) error {
		var err error
		siblings, err = e.tasks.SkipAllForIdentity(c, tx, identity, reason)
		if err != nil {
			return err
		}
		for _, sib := range siblings {
			if sib.State == model.TaskPending {
				continue
			}
			if err := e.checkpoints.Record(c, tx, &model.Checkpoint{
				TaskID:    sib.ID,
				State:     model.TaskSkipped,
				Attempt:   sib.Attempts,
				LastError: reason,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return len(siblings), err
}

func (e *Engine) retry(ctx context.Context, task *model.Task, cause error) {
	if err := e.transition(ctx, task, model.TaskFailed, cause.Error()); err != nil {
		e.log.Error().Err(err).Str("task_id", task.ID).Msg("failure transition failed")
		return
	}
	task.LastError = cause.Error()
	if err := e.queue.RequeueForRetry(ctx, task); err != nil {
		if errors.Is(err, domain.ErrRetryLimitExceeded) {
			logging.With(ctx, e.log).Error().Err(cause).Int("attempts", task.Attempts).Msg("retry limit exceeded")
			metrics.IncTaskProcessed(string(task.Kind), string(model.TaskFailed))
			e.alert(ctx, adapter.Alert{
				Severity: adapter.AlertWarning,
				TaskID:   task.ID,
				Identity: task.Identity,
				Message:  fmt.Sprintf("task failed after %d attempts: %v", task.Attempts, cause),
			})
			return
		}
		e.log.Error().Err(err).Str("task_id", task.ID).Msg("requeue failed")
		return
	}
	if err := e.governor.Penalize(ctx, task.Kind, e.governor.Backoff(task.Attempts)); err != nil {
		e.log.Error().Err(err).Msg("backoff penalty failed")
	}
}

// terminalFail forces the task to Failed without making it retry-eligible.
func (e *Engine) terminalFail(ctx context.Context, task *model.Task, cause error) {
	if task.State.CanTransition(model.TaskFailed) {
		if err := e.transition(ctx, task, model.TaskFailed, cause.Error()); err != nil {
			e.log.Error().Err(err).Str("task_id", task.ID).Msg("terminal fail transition failed")
			return
		}
	} else {
		task.State = model.TaskFailed
		task.LastError = cause.Error()
		if err := e.tasks.Save(ctx, nil, task); err != nil {
			e.log.Error().Err(err).Str("task_id", task.ID).Msg("terminal fail save failed")
			return
		}
	}
	metrics.IncTaskProcessed(string(task.Kind), string(model.TaskFailed))
}

// failAccount handles a fatal-for-account error: the current task fails
// terminally, claiming pauses, and an operator is paged. Work resumes only
// after the session is reset through the ops API.
func (e *Engine) failAccount(ctx context.Context, task *model.Task, cause error) {
	logging.With(ctx, e.log).Error().Err(cause).Str("account", e.accountID).Msg("account unusable, pausing engine")
	e.terminalFail(ctx, task, cause)
	e.Pause()
	// The pause flag only covers this process. Flag the stored session too,
	// so a sweeper or a second orchestrator never lends it out again.
	if err := e.sessions.MarkBlocked(context.Background(), e.accountID); err != nil {
		e.log.Error().Err(err).Str("account", e.accountID).Msg("mark session blocked failed")
	}
	metrics.IncSessionBlocked()
	e.alert(ctx, adapter.Alert{
		Severity: adapter.AlertCritical,
		TaskID:   task.ID,
		Identity: task.Identity,
		Message:  fmt.Sprintf("account %s is unusable (%v); automation paused until session reset", e.accountID, cause),
	})
}

func (e *Engine) alert(ctx context.Context, a adapter.Alert) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Send(ctx, a); err != nil {
		e.log.Error().Err(err).Msg("alert delivery failed")
	}
}
