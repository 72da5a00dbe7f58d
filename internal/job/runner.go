package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Task is one unit of work handed from Submit to the worker pool.
type Task struct {
	ID    string
	Image []byte
}

// Runner drives a single job through its transform and records the outcome.
type Runner struct {
	repo        Repository
	transformer Transformer
	observer    Observer
	timeout     time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTimeout bounds each transform. Zero disables the deadline.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithObserver sets the observer notified when a job finishes.
func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

func NewRunner(repo Repository, transformer Transformer, opts ...RunnerOption) *Runner {
	r := &Runner{
		repo:        repo,
		transformer: transformer,
		observer:    Observers(nil),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run processes t to a terminal state. Failures are recorded on the job and
// never returned.
func (r *Runner) Run(ctx context.Context, t Task) {
	start := time.Now()

	// Store writes must land even after the transform context is cancelled.
	storeCtx := context.WithoutCancel(ctx)

	ctx = WithID(ctx, t.ID)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	onProgress := func(p int) {
		r.apply(storeCtx, t.ID, advance(p))
	}

	resultURL, err := r.transform(ctx, t.Image, onProgress)
	if err == nil && resultURL == "" {
		err = errors.New("transform returned no result")
	}

	if err != nil {
		msg := failureMessage(ctx, err)
		slog.Warn("runner: transform failed", "job", t.ID, "transformer", r.transformer.Name(), "error", msg)
		r.apply(storeCtx, t.ID, fail(msg))
	} else {
		slog.Info("runner: transform done", "job", t.ID, "transformer", r.transformer.Name(), "duration", time.Since(start).String())
		r.apply(storeCtx, t.ID, complete(resultURL))
	}

	j, getErr := r.repo.Get(storeCtx, t.ID)
	if getErr != nil {
		slog.Error("runner: reload job", "job", t.ID, "error", getErr)
		return
	}
	r.observer.Finished(storeCtx, *j, time.Since(start))
}

// Reject fails a task that will never run and notifies observers, unless
// the job already reached a terminal state.
func (r *Runner) Reject(ctx context.Context, t Task, reason string) {
	var rejected bool
	r.apply(ctx, t.ID, func(j *Job) {
		if j.Status == StatusProcessing {
			fail(reason)(j)
			rejected = true
		}
	})
	if !rejected {
		return
	}

	j, err := r.repo.Get(ctx, t.ID)
	if err != nil {
		slog.Error("runner: reload job", "job", t.ID, "error", err)
		return
	}
	r.observer.Finished(ctx, *j, time.Since(j.CreatedAt))
}

func (r *Runner) transform(ctx context.Context, image []byte, onProgress func(int)) (url string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transform panicked: %v", rec)
		}
	}()
	return r.transformer.Transform(ctx, image, onProgress)
}

func (r *Runner) apply(ctx context.Context, id string, fn func(*Job)) {
	if err := r.repo.Update(ctx, id, fn); err != nil {
		slog.Error("runner: update job", "job", id, "error", err)
	}
}

func failureMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "transform timed out"
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return "transform canceled"
	case err.Error() == "":
		return "processing failed"
	default:
		return err.Error()
	}
}
