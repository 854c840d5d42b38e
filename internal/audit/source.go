package audit

import "context"

// SourceStore is recorded when no source is attached to the context.
const SourceStore = "store"

type sourceKey struct{}

// WithSource tags ctx with the surface a mutation arrived through ("api", "cli").
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the source attached by WithSource, or SourceStore.
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return SourceStore
}
