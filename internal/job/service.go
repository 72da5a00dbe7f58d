package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahmethakanbesel/cartoon-api/internal/apperror"
)

// Dispatcher schedules a task without waiting for it to run.
type Dispatcher interface {
	Dispatch(t Task) error
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
	observer   Observer
}

func NewService(repo Repository, dispatcher Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher, observer: Observers(nil)}
}

// SetObserver sets the observer notified on submission and on dispatch failure.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Submit creates a job for the image and schedules it. It returns as soon as
// the job is queued.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	uid, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	id := uid.String()

	if err := s.repo.Create(ctx, id); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	s.notifySubmitted(ctx, id)

	if err := s.dispatcher.Dispatch(Task{ID: id, Image: req.Image}); err != nil {
		return "", s.rejectJob(ctx, id, err)
	}

	slog.Info("job submitted", "job", id, "bytes", len(req.Image))
	return id, nil
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

// FailStaleJobs moves jobs left in processing by a previous process to the
// error state. Only meaningful for stores that outlive the process.
func (s *Service) FailStaleJobs(ctx context.Context) error {
	n, err := s.repo.FailStale(ctx, "interrupted by restart")
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("failed interrupted jobs", "count", n)
	}
	return nil
}

// Prune removes terminal jobs last updated more than maxAge ago.
func (s *Service) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.Prune(ctx, time.Now().UTC().Add(-maxAge))
}

// RunRetention prunes old terminal jobs every interval until ctx is
// cancelled. A non-positive maxAge keeps jobs forever.
func (s *Service) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx, maxAge)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("retention: prune jobs", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("retention: pruned jobs", "count", n)
			}
		}
	}
}

func (s *Service) notifySubmitted(ctx context.Context, id string) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		slog.Error("reload submitted job", "job", id, "error", err)
		return
	}
	s.observer.Submitted(ctx, *j)
}

func (s *Service) rejectJob(ctx context.Context, id string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	slog.Warn("job rejected", "job", id, "error", cause)

	if err := s.repo.Update(ctx, id, fail(cause.Error())); err != nil {
		slog.Error("fail rejected job", "job", id, "error", err)
	}
	if j, err := s.repo.Get(ctx, id); err == nil {
		s.observer.Finished(ctx, *j, 0)
	}

	if errors.Is(cause, ErrQueueFull) || errors.Is(cause, ErrPoolClosed) {
		return apperror.New(apperror.Unavailable, "server is busy, try again later")
	}
	return fmt.Errorf("dispatch job: %w", cause)
}
