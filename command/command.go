// Package command models the push protocol's command list: the typed
// create/update/delete reference updates a client requests, and the
// pkt-line parser that produces them from the wire.
package command

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/grafana/git-receive-pack/oid"
)

// Op classifies a single reference update.
type Op int

const (
	// OpCreate is old == zero, new != zero: the ref does not yet exist.
	OpCreate Op = iota
	// OpUpdate is old != zero, new != zero, old != new: a fast-forward or
	// forced move of an existing ref.
	OpUpdate
	// OpDelete is new == zero: the ref is being removed.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Update is one `<old> <new> <refname>` line, classified by Op.
type Update struct {
	Old  oid.OID
	New  oid.OID
	Name string
	Op   Op
}

// Classify derives the Op for the given old/new pair: old==zero is a
// Create, new==zero is a Delete, otherwise it's an Update.
func Classify(old, new oid.OID) Op {
	switch {
	case old.IsZero():
		return OpCreate
	case new.IsZero():
		return OpDelete
	default:
		return OpUpdate
	}
}

// Validate checks a single Update's invariants: non-empty,
// refs/-prefixed name, and old/new consistency with Op.
func (u Update) Validate() error {
	if err := ValidateRefName(u.Name); err != nil {
		return fmt.Errorf("command: %s: %w", u.Name, err)
	}

	switch u.Op {
	case OpCreate:
		if u.New.IsZero() {
			return fmt.Errorf("command: %s: create requires a non-zero new oid", u.Name)
		}
	case OpUpdate:
		if u.Old.IsZero() || u.New.IsZero() {
			return fmt.Errorf("command: %s: update requires non-zero old and new oids", u.Name)
		}
		if u.Old.Is(u.New) {
			return fmt.Errorf("command: %s: update requires old != new", u.Name)
		}
	case OpDelete:
		if u.Old.IsZero() {
			return fmt.Errorf("command: %s: delete requires a non-zero old oid", u.Name)
		}
	default:
		return fmt.Errorf("command: %s: unknown op %v", u.Name, u.Op)
	}

	return nil
}

// List is an ordered sequence of Updates preserving wire order. Order is
// significant: policy reason codes and the report-status response must
// match the list 1-for-1.
type List []Update

// Validate checks every Update and the list-wide uniqueness-of-refname
// invariant.
func (l List) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for _, u := range l {
		if err := u.Validate(); err != nil {
			return err
		}
		if _, ok := seen[u.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRefName, u.Name)
		}
		seen[u.Name] = struct{}{}
	}
	return nil
}

// Names returns the refnames in the list, in wire order.
func (l List) Names() []string {
	names := make([]string, len(l))
	for i, u := range l {
		names[i] = u.Name
	}
	return names
}

// ParseLine parses one `<old-hex> <new-hex> <refname>` line (without its
// trailing newline or NUL-separated capability suffix) into an Update.
func ParseLine(line string) (Update, error) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) != 3 {
		return Update{}, fmt.Errorf("command: malformed command line %q", line)
	}

	oldOID, err := oid.FromHex(fields[0])
	if err != nil {
		return Update{}, fmt.Errorf("command: invalid old oid %q: %w", fields[0], err)
	}
	newOID, err := oid.FromHex(fields[1])
	if err != nil {
		return Update{}, fmt.Errorf("command: invalid new oid %q: %w", fields[1], err)
	}

	name := strings.TrimRight(fields[2], "\n")

	u := Update{
		Old:  oldOID,
		New:  newOID,
		Name: name,
		Op:   Classify(oldOID, newOID),
	}
	if err := u.Validate(); err != nil {
		return Update{}, err
	}
	return u, nil
}

// ParseFirstLine parses the first data packet of a command stream, which
// carries the client's selected capabilities after a NUL byte following the
// first command line. It returns the parsed Update and the raw capability
// string (possibly empty if the caller's server chose not to require one,
// though the protocol always sends the separator on the first line).
func ParseFirstLine(line string) (Update, string, error) {
	body, caps, found := strings.Cut(line, "\x00")
	if !found {
		u, err := ParseLine(line)
		return u, "", err
	}
	u, err := ParseLine(body)
	return u, strings.TrimRight(caps, "\n"), err
}

// ParseLines parses a full command list from already-split data packets
// (as returned by pktline.Reader.ReadLines up to the terminating flush).
// The first packet is special-cased through ParseFirstLine. Returns the
// list and the negotiated raw capability string.
func ParseLines(lines [][]byte) (List, string, error) {
	if len(lines) == 0 {
		return nil, "", fmt.Errorf("command: empty command list")
	}

	first, caps, err := ParseFirstLine(string(lines[0]))
	if err != nil {
		return nil, "", err
	}

	list := make(List, 0, len(lines))
	list = append(list, first)

	for _, raw := range lines[1:] {
		u, err := ParseLine(string(raw))
		if err != nil {
			return nil, "", err
		}
		list = append(list, u)
	}

	if err := list.Validate(); err != nil {
		return nil, "", err
	}

	return list, caps, nil
}

// FormatLine re-emits an Update in wire order, the inverse of ParseLine.
// Used both to build the pre-receive/post-receive hook stdin stream and by
// the round-trip property test.
func FormatLine(u Update) string {
	return fmt.Sprintf("%s %s %s\n", hexOrZero(u.Old), hexOrZero(u.New), u.Name)
}

// hexOrZero renders o at its own width; the width-less Zero sentinel
// (an empty slice) defaults to the 40-char SHA-1 form. An all-zero OID
// that does carry a width keeps it, so SHA-256 creates and deletes
// render as 64 zero chars.
func hexOrZero(o oid.OID) string {
	if len(o) == 0 {
		return strings.Repeat("0", 40)
	}
	return o.String()
}

// ScanHookStdin is a convenience reader matching the hook dispatcher's
// stdin format: `<old> <new> <refname>\n`, one per line, EOF-terminated.
func ScanHookStdin(s *bufio.Scanner) (List, error) {
	var list List
	for s.Scan() {
		line := s.Text()
		if line == "" {
			continue
		}
		u, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, s.Err()
}
