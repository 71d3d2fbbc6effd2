// Package log provides the structured logging interface threaded
// through the push session: post-receive failures, failed policy-warning
// relays, and other diagnostics callers want surfaced are logged
// through this seam rather than written directly to stderr, so a host
// process can route them into its own logging stack.
package log

// Logger is a minimal, leveled structured-logging interface.
//
//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o mocks/logger.go . Logger
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}
