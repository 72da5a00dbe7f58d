package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmethakanbesel/cartoon-api/internal/apperror"
	domain "github.com/ahmethakanbesel/cartoon-api/internal/job"
)

// MemoryRepository keeps jobs in a map guarded by a mutex. It is the default
// store; nothing survives a restart.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*domain.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return apperror.New(apperror.Conflict, "job already exists")
	}
	r.jobs[id] = domain.New(id, r.now())
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "job not found")
	}
	cp := *j
	return &cp, nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, fn func(*domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		slog.Warn("update of unknown job ignored", "job", id)
		return nil
	}
	before := *j
	fn(j)
	j.ID = before.ID
	if *j != before {
		j.UpdatedAt = r.now()
	}
	return nil
}

func (r *MemoryRepository) Prune(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(before) {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) FailStale(_ context.Context, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := r.now()
	for _, j := range r.jobs {
		if j.Status == domain.StatusProcessing {
			j.Status = domain.StatusError
			j.Error = reason
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
