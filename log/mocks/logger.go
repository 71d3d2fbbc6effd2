// Package mocks provides a hand-written test double for log.Logger.
package mocks

// FakeLogger records every call made to it, for tests that want to
// assert on log content without wiring a real sink.
type FakeLogger struct {
	DebugCalls []Call
	InfoCalls  []Call
	WarnCalls  []Call
	ErrorCalls []Call
}

// Call captures one logging call's arguments.
type Call struct {
	Msg           string
	KeysAndValues []any
}

func (f *FakeLogger) Debug(msg string, keysAndValues ...any) {
	f.DebugCalls = append(f.DebugCalls, Call{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Info(msg string, keysAndValues ...any) {
	f.InfoCalls = append(f.InfoCalls, Call{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Warn(msg string, keysAndValues ...any) {
	f.WarnCalls = append(f.WarnCalls, Call{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Error(msg string, keysAndValues ...any) {
	f.ErrorCalls = append(f.ErrorCalls, Call{Msg: msg, KeysAndValues: keysAndValues})
}
