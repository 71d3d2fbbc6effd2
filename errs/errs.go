// Package errs defines the push service's error taxonomy: a fixed set
// of Kinds, each wrapped in a structured *Error carrying enough detail to
// decide how the session driver should propagate it (fatal to the whole
// session vs. per-command), plus a Message-less sentinel per Kind usable
// with errors.Is.
package errs

import "fmt"

// Kind classifies an Error for propagation purposes.
type Kind int

const (
	// KindValidation covers malformed wire input, bad OID hex, bad
	// refname, conflicting shallow plans.
	KindValidation Kind = iota
	// KindProtocol covers negotiated capability violations, unexpected
	// packet kinds, version mismatches.
	KindProtocol
	// KindIO covers socket, process, and filesystem errors.
	KindIO
	// KindPackCorrupt covers checksum mismatches, truncation, unknown
	// object types.
	KindPackCorrupt
	// KindHookRejected covers a hook's non-zero exit, timeout, or crash.
	KindHookRejected
	// KindProcReceiveRejected covers a helper's `ng` response or its own
	// failure.
	KindProcReceiveRejected
	// KindPolicyDenied covers a policy-engine denial, carrying a
	// ReasonCode (see the policy package).
	KindPolicyDenied
	// KindCancelled covers cooperative cancellation having been observed.
	KindCancelled
	// KindUnimplemented covers a selected feature combination not
	// compiled in.
	KindUnimplemented
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindPackCorrupt:
		return "pack-corrupt"
	case KindHookRejected:
		return "hook-rejected"
	case KindProcReceiveRejected:
		return "proc-receive-rejected"
	case KindPolicyDenied:
		return "policy-denied"
	case KindCancelled:
		return "cancelled"
	case KindUnimplemented:
		return "unimplemented"
	default:
		return fmt.Sprintf("errs.Kind(%d)", int(k))
	}
}

// Error is the structured error type every phase of the session returns.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error

	// HookName is set when Kind == KindHookRejected.
	HookName string
	// ExitCode is set when Kind == KindHookRejected and the process ran
	// to completion (as opposed to a timeout or spawn failure).
	ExitCode *int
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap preserves the error chain for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is reports whether target is the Kind sentinel for e.Kind, so callers
// can write errors.Is(err, errs.Cancelled) without a type assertion.
func (e *Error) Is(target error) bool {
	sentinel, ok := target.(*Error)
	if !ok {
		return false
	}
	return sentinel.Kind == e.Kind && sentinel.Message == ""
}

// New constructs an Error of the given kind wrapping err with a message.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Underlying: err}
}

// HookRejected constructs a KindHookRejected Error naming the hook and,
// if the process actually exited, its exit code.
func HookRejected(hookName, message string, exitCode *int, err error) *Error {
	return &Error{
		Kind:       KindHookRejected,
		Message:    message,
		Underlying: err,
		HookName:   hookName,
		ExitCode:   exitCode,
	}
}

// Sentinels usable with errors.Is against any Error of the matching Kind
// (the Message-less zero value of each Kind), e.g. errors.Is(err,
// errs.Cancelled).
var (
	Validation          = &Error{Kind: KindValidation}
	Protocol            = &Error{Kind: KindProtocol}
	IO                  = &Error{Kind: KindIO}
	PackCorrupt         = &Error{Kind: KindPackCorrupt}
	HookRejectedKind    = &Error{Kind: KindHookRejected}
	ProcReceiveRejected = &Error{Kind: KindProcReceiveRejected}
	PolicyDenied        = &Error{Kind: KindPolicyDenied}
	Cancelled           = &Error{Kind: KindCancelled}
	Unimplemented       = &Error{Kind: KindUnimplemented}
)
