package job

import "context"

// Transformer turns image bytes into a result reference (URL or path).
// onProgress may be called any number of times with a percentage; it is safe
// to call after Transform has returned.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, image []byte, onProgress func(int)) (string, error)
}

type ctxKey struct{}

// WithID attaches the job id to ctx so transformers can name their output.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IDFromContext returns the job id set by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
