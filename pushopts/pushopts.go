// Package pushopts models the negotiated options attached to a push: the
// capability set, push-options, atomic/quiet flags, the agent string, and
// the client's raw shallow/unshallow OID lists.
package pushopts

import (
	"fmt"
	"strings"

	"github.com/grafana/git-receive-pack/capability"
	"github.com/grafana/git-receive-pack/oid"
)

// Options is the fully-parsed set of out-of-band settings attached to one
// push session.
type Options struct {
	Capabilities capability.Set
	PushOptions  []string
	Atomic       bool
	Quiet        bool
	Agent        string

	// ShallowOIDs / UnshallowOIDs are the raw, unvalidated OID lists the
	// client sent in the same flush-terminated batch as the command list.
	// The shallow package turns
	// these into a deduplicated, validated Plan.
	ShallowOIDs   []oid.OID
	UnshallowOIDs []oid.OID
}

// FromCapabilities derives the boolean/string fields of Options from a
// negotiated capability.Set. Callers still need to attach PushOptions and
// the shallow/unshallow lists separately, since those come from later
// pkt-line sections.
func FromCapabilities(negotiated capability.Set) Options {
	return Options{
		Capabilities: negotiated,
		Atomic:       negotiated.Has(capability.Atomic),
		Quiet:        negotiated.Has(capability.Quiet),
		Agent:        negotiated.Agent(),
	}
}

// ParseShallowLine parses one `shallow <oid>` or `unshallow <oid>` line,
// returning which list it belongs to.
func ParseShallowLine(line string) (isUnshallow bool, id oid.OID, err error) {
	line = strings.TrimRight(line, "\n")
	switch {
	case strings.HasPrefix(line, "shallow "):
		id, err = oid.FromHex(strings.TrimPrefix(line, "shallow "))
		return false, id, err
	case strings.HasPrefix(line, "unshallow "):
		id, err = oid.FromHex(strings.TrimPrefix(line, "unshallow "))
		return true, id, err
	default:
		return false, nil, fmt.Errorf("pushopts: malformed shallow line %q", line)
	}
}

// ParsePushOptionLines trims the trailing newline from each push-option
// packet. Push-options are opaque UTF-8 key=value strings; this module
// does not interpret them.
func ParsePushOptionLines(lines [][]byte) []string {
	opts := make([]string, len(lines))
	for i, l := range lines {
		opts[i] = strings.TrimRight(string(l), "\n")
	}
	return opts
}
