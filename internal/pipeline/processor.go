package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/services"
	"podforge/internal/storage"
	"podforge/internal/task"
)

// TaskError wraps a step failure that exhausted its step-level retries.
// It aborts the current pipeline pass and marks the task-level retry
// boundary for the runner.
type TaskError struct {
	Step string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// retryState carries the bounded retry bookkeeping through one step's
// attempt loop.
type retryState struct {
	attempt int
	max     int
	delay   time.Duration
}

func (r retryState) remaining() bool {
	return r.attempt < r.max
}

// ShouldExecute decides whether a step must run. A step is skipped only
// when this is not a resumed retry targeting it and every declared output
// already exists as a file on disk or a non-empty context value. This
// makes re-execution idempotent at step granularity.
func ShouldExecute(step Step, resumeTarget bool, artifacts *Context, fileExists func(name string) bool) bool {
	if resumeTarget {
		return true
	}
	if len(step.Outputs) == 0 {
		return true
	}
	for _, key := range step.Outputs {
		if fileExists != nil && fileExists(key) {
			continue
		}
		if artifacts.HasValue(key) {
			continue
		}
		return true
	}
	return false
}

// Processor runs one task's step list in order: it decides skip versus
// execute for each step, retries transient step failures a bounded number
// of times, reports durable progress, and escalates exhausted failures as
// a TaskError for the runner's task-level retry.
type Processor struct {
	cfg     *config.Config
	store   *task.Store
	files   *storage.Store
	logger  *slog.Logger
	record  *task.Record
	steps   []Step
	tracker *Tracker
	resume  bool

	wait func(context.Context, time.Duration) error
	now  func() time.Time
}

// NewProcessor builds a processor for one task execution. The resume flag
// marks a user- or runner-initiated retry that should restart from the
// record's current step.
func NewProcessor(cfg *config.Config, store *task.Store, files *storage.Store, logger *slog.Logger, record *task.Record, steps []Step, resume bool) *Processor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Processor{
		cfg:     cfg,
		store:   store,
		files:   files,
		logger:  logger,
		record:  record,
		steps:   steps,
		tracker: NewTracker(store, record, logger),
		resume:  resume,
		wait:    sleepContext,
		now:     time.Now,
	}
}

// Run executes the pipeline pass. It returns nil on success and on the
// record-gone graceful exit; an exhausted step failure returns a
// *TaskError.
func (p *Processor) Run(ctx context.Context) error {
	ctx = services.WithTaskID(ctx, p.record.TaskID)
	runLogger := logging.WithContext(ctx, p.logger)

	if _, err := p.files.EnsureTaskDir(p.record.TaskID, Levels); err != nil {
		return p.fail(ctx, runLogger, "", fmt.Errorf("prepare task directory: %w", err))
	}
	artifacts, err := NewContext(p.record.TaskID, p.files)
	if err != nil {
		return p.fail(ctx, runLogger, "", err)
	}

	start := p.startIndex()
	p.record.TotalSteps = len(p.steps)

	var deadline time.Time
	if minutes := p.cfg.Workflow.TaskTimeoutMinutes; minutes > 0 {
		deadline = p.now().Add(time.Duration(minutes) * time.Minute)
	}

	runLogger.Info("pipeline started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.Int("total_steps", len(p.steps)),
		logging.Int("start_index", start),
		logging.Bool("resume", p.resume),
	)

	for i := start; i < len(p.steps); i++ {
		step := p.steps[i]
		stepCtx := services.WithStep(ctx, step.Name)
		stepLogger := logging.WithContext(stepCtx, p.logger)

		if !deadline.IsZero() && p.now().After(deadline) {
			return p.fail(stepCtx, stepLogger, step.Name, fmt.Errorf("task exceeded %dm wall-clock budget", p.cfg.Workflow.TaskTimeoutMinutes))
		}

		if err := artifacts.Set("current_step_index", i); err != nil {
			return p.fail(stepCtx, stepLogger, step.Name, err)
		}

		resumeTarget := p.resume && i == start && step.Name == strings.TrimSpace(p.record.CurrentStep)
		if !ShouldExecute(step, resumeTarget, artifacts, p.artifactExists) {
			stepLogger.Info("step skipped", logging.String(logging.FieldEventType, "step_skip"))
			if quit, err := p.commitProgress(stepCtx, stepLogger, i, step.Name, 100, "already complete"); quit || err != nil {
				return err
			}
			continue
		}

		if quit, err := p.commitProgress(stepCtx, stepLogger, i, step.Name, 0, "step started"); quit || err != nil {
			return err
		}

		stepStart := p.now()
		if err := p.runStep(stepCtx, stepLogger, step, artifacts); err != nil {
			return p.fail(stepCtx, stepLogger, step.Name, err)
		}
		stepLogger.Info("step completed",
			logging.String(logging.FieldEventType, "step_complete"),
			logging.Duration("step_duration", p.now().Sub(stepStart)),
		)
		if quit, err := p.commitProgress(stepCtx, stepLogger, i, step.Name, 100, "step completed"); quit || err != nil {
			return err
		}
	}

	if err := artifacts.Set("status", "completed"); err != nil {
		runLogger.Warn("failed to persist completed context status", logging.Error(err))
	}
	if err := p.tracker.MarkCompleted(ctx); err != nil {
		if task.IsGone(err) {
			runLogger.Info("task record gone during completion, exiting quietly")
			return nil
		}
		return fmt.Errorf("mark task completed: %w", err)
	}
	runLogger.Info("pipeline completed", logging.String(logging.FieldEventType, "task_complete"))
	return nil
}

// runStep attempts one step with bounded retries. Contract violations and
// non-retryable errors propagate immediately; transient failures retry
// after the configured delay until attempts are exhausted.
func (p *Processor) runStep(ctx context.Context, stepLogger *slog.Logger, step Step, artifacts *Context) error {
	state := retryState{
		max:   1 + p.cfg.Workflow.MaxStepRetries,
		delay: time.Duration(p.cfg.Workflow.StepRetryDelaySeconds) * time.Second,
	}
	if state.max < 1 {
		state.max = 1
	}

	var lastErr error
	for state.attempt = 1; state.attempt <= state.max; state.attempt++ {
		_, err := step.Execute(ctx, artifacts)
		if err == nil {
			return nil
		}
		lastErr = err
		if IsContractError(err) {
			stepLogger.Error("step contract violation", logging.Error(err))
			return err
		}
		if !services.Retryable(err) {
			stepLogger.Error("step failed with non-retryable error", logging.Error(err))
			return err
		}
		if state.remaining() {
			stepLogger.Warn("step failed, retrying",
				logging.Int("attempt", state.attempt),
				logging.Int("max_attempts", state.max),
				logging.Duration("retry_delay", state.delay),
				logging.Error(err),
			)
			if waitErr := p.wait(ctx, state.delay); waitErr != nil {
				return waitErr
			}
		}
	}
	return lastErr
}

// fail records the failure durably and persists the failed status into the
// context document. A record deleted mid-run is logged and swallowed.
func (p *Processor) fail(ctx context.Context, stepLogger *slog.Logger, stepName string, cause error) error {
	if task.IsGone(cause) {
		stepLogger.Info("task record gone, exiting quietly", logging.Error(cause))
		return nil
	}

	stepLogger.Error("pipeline failed",
		logging.String(logging.FieldEventType, "task_failed"),
		logging.Error(cause),
	)
	if err := p.tracker.UpdateError(ctx, cause.Error()); err != nil {
		if task.IsGone(err) {
			stepLogger.Info("task record gone while recording failure, exiting quietly")
			return nil
		}
		stepLogger.Error("failed to record task failure", logging.Error(err))
	}

	if artifacts, err := NewContext(p.record.TaskID, p.files); err == nil {
		if err := artifacts.Set("status", "failed"); err != nil {
			stepLogger.Warn("failed to persist failed context status", logging.Error(err))
		}
	}

	// Contract violations repeat identically on every attempt, so they
	// propagate bare and never reach the task-level retry.
	if IsContractError(cause) {
		return cause
	}
	return &TaskError{Step: stepName, Err: cause}
}

// commitProgress writes one progress update. The quit return is set when
// the record vanished and the run should end quietly.
func (p *Processor) commitProgress(ctx context.Context, stepLogger *slog.Logger, index int, name string, percent int, message string) (bool, error) {
	err := p.tracker.UpdateProgress(ctx, index, name, percent, message)
	if err == nil {
		return false, nil
	}
	if task.IsGone(err) {
		stepLogger.Info("task record gone during progress update, exiting quietly")
		return true, nil
	}
	return false, fmt.Errorf("update progress: %w", err)
}

func (p *Processor) startIndex() int {
	if !p.resume {
		return 0
	}
	name := strings.TrimSpace(p.record.CurrentStep)
	if name == "" {
		return 0
	}
	for i, step := range p.steps {
		if step.Name == name {
			return i
		}
	}
	return 0
}

func (p *Processor) artifactExists(name string) bool {
	return p.files.Exists(p.record.TaskID, name)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
