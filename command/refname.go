package command

import "strings"

// ValidateRefName applies Git's check-ref-format rules to a fully-qualified
// reference name destined for a push command. Unlike a general-purpose
// refname parser, a push command target is never "HEAD" itself — only the
// server's own symbolic-ref resolution deals in bare HEAD.
//
// Rules (see https://git-scm.com/docs/git-check-ref-format):
//   - must start with "refs/"
//   - must contain a category component after refs/ (e.g. "heads/main")
//   - no consecutive dots ("..") anywhere
//   - no consecutive slashes ("//")
//   - no "@{" sequence
//   - no trailing dot or slash
//   - no path component may start with "." or end with ".lock"
//   - no component may be the single character "@"
//   - no control characters, space, '~', '^', ':', '?', '*', '[', DEL, '\\'
func ValidateRefName(name string) error {
	if name == "" {
		return errEmptyRefName
	}

	if !strings.HasPrefix(name, "refs/") {
		return errMissingRefsPrefix
	}

	rest := name[len("refs/"):]
	if rest == "" {
		return errMissingCategory
	}

	if strings.ContainsAny(rest, "\n\r") {
		return errControlChar
	}
	if strings.Contains(rest, "..") {
		return errConsecutiveDots
	}
	if strings.Contains(rest, "//") {
		return errConsecutiveSlashes
	}
	if strings.Contains(rest, "@{") {
		return errAtBrace
	}
	if strings.HasSuffix(rest, ".") || strings.HasSuffix(rest, "/") {
		return errTrailingDotOrSlash
	}
	if strings.Count(rest, "/") < 1 {
		return errMissingCategory
	}

	for _, component := range strings.Split(rest, "/") {
		if err := validateComponent(component); err != nil {
			return err
		}
	}

	return nil
}

func validateComponent(c string) error {
	switch {
	case c == "":
		return errEmptyComponent
	case c == "@":
		return errBareAt
	case strings.HasPrefix(c, "."):
		return errLeadingDot
	case strings.HasSuffix(c, ".lock"):
		return errLockSuffix
	}

	hasInvalidRune := strings.ContainsFunc(c, func(r rune) bool {
		return r < 0o040 || r == 0o177 || r == ' ' || r == '~' || r == '^' || r == ':' || r == '?' || r == '*' || r == '[' || r == '\\'
	})
	if hasInvalidRune {
		return errInvalidRune
	}

	return nil
}
