package job

import (
	"context"
	"time"
)

// Observer receives lifecycle notifications. Implementations must not block
// for long; they run on the submitting request or the runner goroutine.
type Observer interface {
	Submitted(ctx context.Context, j Job)
	Finished(ctx context.Context, j Job, elapsed time.Duration)
}

// Observers fans notifications out to every member.
type Observers []Observer

func (o Observers) Submitted(ctx context.Context, j Job) {
	for _, ob := range o {
		ob.Submitted(ctx, j)
	}
}

func (o Observers) Finished(ctx context.Context, j Job, elapsed time.Duration) {
	for _, ob := range o {
		ob.Finished(ctx, j, elapsed)
	}
}
