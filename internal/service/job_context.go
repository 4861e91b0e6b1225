package service

import "context"

type jobIDKey struct{}

// WithJobID returns a context carrying the broker job id being executed.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext returns the job id stored by WithJobID, or "" for immediate sends.
func JobIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(jobIDKey{}).(string)
	return id
}
