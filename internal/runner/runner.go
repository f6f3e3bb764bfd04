package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"podforge/internal/config"
	"podforge/internal/logging"
	"podforge/internal/notifications"
	"podforge/internal/pipeline"
	"podforge/internal/task"
)

// submissionQueueSize bounds how many tasks may wait for a free worker.
const submissionQueueSize = 256

// ProcessFunc executes one pipeline pass for a record. The daemon wires
// this to a fully assembled Processor; tests substitute fakes.
type ProcessFunc func(ctx context.Context, record *task.Record, resume bool) error

// Handle tracks one submitted task run.
type Handle struct {
	taskID string
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// TaskID returns the identifier of the submitted task.
func (h *Handle) TaskID() string {
	return h.taskID
}

// Done is closed when the task run finishes, successfully or not.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error of the run. Valid after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the run finishes or the context is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

type submission struct {
	record *task.Record
	resume bool
	handle *Handle
}

// Runner owns the bounded worker pool. Submitted tasks queue until a
// worker is free; each worker runs one task's pipeline to completion,
// wrapping it with the task-level retry policy.
type Runner struct {
	cfg      *config.Config
	store    *task.Store
	logger   *slog.Logger
	notifier notifications.Service
	process  ProcessFunc

	queue chan *submission

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	wait func(context.Context, time.Duration) error
}

// New constructs a runner. The notifier may be nil when notifications are
// not wanted.
func New(cfg *config.Config, store *task.Store, logger *slog.Logger, notifier notifications.Service, process ProcessFunc) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		notifier: notifier,
		process:  process,
		queue:    make(chan *submission, submissionQueueSize),
		wait:     sleepContext,
	}
}

// Start launches the worker pool.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("runner already running")
	}
	if r.process == nil {
		return errors.New("runner process function not configured")
	}

	workers := r.cfg.Workflow.MaxTaskWorkers
	if workers < 1 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker(runCtx, i)
	}
	r.logger.Info("runner started", logging.Int("workers", workers))
	return nil
}

// Stop terminates the pool and waits for in-flight tasks to finish their
// current pipeline pass.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
}

// Submit queues a task for execution and returns a handle for callers
// that want to observe completion. A full queue is an error rather than
// an unbounded backlog.
func (r *Runner) Submit(record *task.Record) (*Handle, error) {
	return r.enqueue(record, false)
}

// Retry re-submits a failed task with the resume flag set so the pipeline
// restarts from the step recorded at failure time.
func (r *Runner) Retry(ctx context.Context, taskID string) (*Handle, error) {
	record, err := r.store.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if record.Status != task.StatusFailed {
		return nil, fmt.Errorf("task %s is %s, only failed tasks can be retried", taskID, record.Status)
	}
	return r.enqueue(record, true)
}

func (r *Runner) enqueue(record *task.Record, resume bool) (*Handle, error) {
	handle := &Handle{taskID: record.TaskID, done: make(chan struct{})}
	sub := &submission{record: record, resume: resume, handle: handle}
	select {
	case r.queue <- sub:
		return handle, nil
	default:
		return nil, fmt.Errorf("submission queue full (%d pending)", len(r.queue))
	}
}

// CheckIncompleteTasks force-fails every record left pending or processing
// by a previous process. Nothing resumes automatically across a restart;
// the user retries explicitly.
func (r *Runner) CheckIncompleteTasks(ctx context.Context) (int64, error) {
	count, err := r.store.MarkIncompleteFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile incomplete tasks: %w", err)
	}
	if count > 0 {
		r.logger.Warn("marked tasks interrupted by restart as failed", logging.Int64("count", count))
	}
	return count, nil
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	workerLogger := r.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-r.queue:
			sub.handle.finish(r.runTask(ctx, workerLogger, sub))
		}
	}
}

// runTask wraps the pipeline with the task-level retry policy: a pass
// that ends in a *pipeline.TaskError is re-attempted after a delay with
// the resume flag set, so already-complete steps are skipped.
func (r *Runner) runTask(ctx context.Context, workerLogger *slog.Logger, sub *submission) error {
	taskLogger := workerLogger.With(logging.String(logging.FieldTaskID, sub.record.TaskID))

	attempts := 1 + r.cfg.Workflow.MaxTaskRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(r.cfg.Workflow.TaskRetryDelaySeconds) * time.Second

	resume := sub.resume
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.process(ctx, sub.record, resume)
		if err == nil {
			r.finishTask(ctx, taskLogger, sub.record)
			return nil
		}
		lastErr = err

		var taskErr *pipeline.TaskError
		if !errors.As(err, &taskErr) {
			taskLogger.Error("task failed without retry eligibility", logging.Error(err))
			break
		}
		if attempt < attempts {
			taskLogger.Warn("task failed, scheduling task-level retry",
				logging.String(logging.FieldStep, taskErr.Step),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", attempts),
				logging.Duration("retry_delay", delay),
				logging.Error(err),
			)
			if waitErr := r.wait(ctx, delay); waitErr != nil {
				return waitErr
			}
			resume = true
		}
	}

	r.notifyFailure(ctx, taskLogger, sub.record)
	return lastErr
}

// finishTask handles the nil-error outcome. The pipeline also returns nil
// when the record vanished mid-run, so only a genuinely completed record
// produces a notification.
func (r *Runner) finishTask(ctx context.Context, taskLogger *slog.Logger, record *task.Record) {
	if record.Status != task.StatusCompleted {
		return
	}
	taskLogger.Info("task completed", logging.String("title", record.Title))
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyTaskCompleted(ctx, record.Title, record.TaskID); err != nil {
		taskLogger.Warn("completion notification failed", logging.Error(err))
	}
}

func (r *Runner) notifyFailure(ctx context.Context, taskLogger *slog.Logger, record *task.Record) {
	if r.notifier == nil {
		return
	}
	reason := strings.TrimSpace(record.ErrorMessage)
	if err := r.notifier.NotifyTaskFailed(ctx, record.Title, record.TaskID, reason); err != nil {
		taskLogger.Warn("failure notification failed", logging.Error(err))
	}
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
