package log

import "context"

// loggerKey is the context key a Logger is injected under, following the
// same context-value idiom the rest of this module uses for pluggable
// collaborators (cancel.Flag, ancestry.Store).
type loggerKey struct{}

// ToContext attaches logger to ctx.
func ToContext(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the Logger attached to ctx, or nil if none was
// set.
func FromContext(ctx context.Context) Logger {
	logger, _ := ctx.Value(loggerKey{}).(Logger)
	return logger
}
