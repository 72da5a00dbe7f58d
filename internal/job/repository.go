package job

import (
	"context"
	"time"
)

// Repository owns every job record. Implementations must make Create, Get and
// Update safe for concurrent use; Get returns a copy and Update applies fn
// atomically to the stored record.
type Repository interface {
	Create(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, fn func(*Job)) error
	Prune(ctx context.Context, before time.Time) (int64, error)
	FailStale(ctx context.Context, reason string) (int64, error)
}
