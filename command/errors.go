package command

import "errors"

// Refname validation errors. Each names the specific rule violated, per
// https://git-scm.com/docs/git-check-ref-format.
var (
	errEmptyRefName       = errors.New("refname: empty")
	errMissingRefsPrefix  = errors.New("refname: must start with refs/")
	errMissingCategory    = errors.New("refname: missing category after refs/")
	errControlChar        = errors.New("refname: contains a control character")
	errConsecutiveDots    = errors.New("refname: cannot contain two consecutive dots")
	errConsecutiveSlashes = errors.New("refname: cannot contain multiple consecutive slashes")
	errAtBrace            = errors.New("refname: cannot contain the sequence @{")
	errTrailingDotOrSlash = errors.New("refname: cannot end with a dot or a slash")
	errEmptyComponent     = errors.New("refname: components cannot be empty")
	errBareAt             = errors.New("refname: a component cannot be the single character @")
	errLeadingDot         = errors.New("refname: components cannot begin with a dot")
	errLockSuffix         = errors.New("refname: components cannot end with .lock")
	errInvalidRune        = errors.New("refname: contains a control character, space, ~, ^, :, ?, *, [, DEL, or backslash")

	// ErrDuplicateRefName is returned by List validation when the same
	// refname appears more than once in a single command list.
	ErrDuplicateRefName = errors.New("command: duplicate refname in command list")
)
