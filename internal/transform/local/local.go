// Package local implements the placeholder transformer: it reports a few
// progress ticks and publishes the uploaded image unchanged under /outputs/.
package local

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahmethakanbesel/cartoon-api/internal/job"
	"github.com/ahmethakanbesel/cartoon-api/internal/transform"
)

// Store persists output files.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

type Transformer struct {
	store     Store
	baseURL   string
	ticks     []int
	tickDelay time.Duration
}

// New creates a Transformer with the given options applied.
func New(store Store, opts ...Option) *Transformer {
	t := &Transformer{
		store:     store,
		ticks:     []int{10, 40, 70},
		tickDelay: 200 * time.Millisecond,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithPublicBaseURL prefixes returned result URLs, e.g. "https://api.example.com".
// Without it results are site-relative ("/outputs/<id>.png").
func WithPublicBaseURL(u string) Option {
	return func(t *Transformer) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithTickDelay sets the pause between progress ticks.
func WithTickDelay(d time.Duration) Option {
	return func(t *Transformer) { t.tickDelay = d }
}

func (t *Transformer) Name() string { return transform.Local }

func (t *Transformer) Transform(ctx context.Context, image []byte, onProgress func(int)) (string, error) {
	id, ok := job.IDFromContext(ctx)
	if !ok {
		id = uuid.NewString()
	}

	for _, p := range t.ticks {
		if err := sleep(ctx, t.tickDelay); err != nil {
			return "", err
		}
		onProgress(p)
	}

	_, ext := transform.Sniff(image)
	name := id + ext
	if _, err := t.store.Save(ctx, name, image); err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	onProgress(90)

	return t.baseURL + "/outputs/" + name, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
