// Package capability implements Git's push capability negotiation: the
// server advertises a set of supported tokens, the client echoes back the
// subset it wants to use, and the two sides agree on exactly one value for
// the 'agent' token (informational only, never enforced).
package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known capability tokens relevant to receive-pack.
const (
	ReportStatus   = "report-status"
	ReportStatusV2 = "report-status-v2"
	DeleteRefs     = "delete-refs"
	OfsDelta       = "ofs-delta"
	Quiet          = "quiet"
	Atomic         = "atomic"
	SideBand64k    = "side-band-64k"
	PushOptions    = "push-options"
	agentPrefix    = "agent="
)

// Set is a parsed capability list. Bare tokens map to the empty string;
// "key=value" tokens ("agent=...", "object-format=...") keep their value.
type Set map[string]string

// ModernDefaults returns the capability set a modern receive-pack
// advertises by default.
func ModernDefaults(agent string) Set {
	s := Set{
		ReportStatus:   "",
		ReportStatusV2: "",
		DeleteRefs:     "",
		OfsDelta:       "",
		Quiet:          "",
		Atomic:         "",
		PushOptions:    "",
		SideBand64k:    "",
	}
	if agent != "" {
		s[agentPrefix[:len(agentPrefix)-1]] = agent
	}
	return s
}

// Parse splits a whitespace-separated capability string (as found after the
// NUL byte on the first ref/command line) into a Set.
func Parse(raw string) Set {
	s := make(Set)
	for _, tok := range strings.Fields(raw) {
		if key, value, ok := strings.Cut(tok, "="); ok {
			s[key] = value
		} else {
			s[tok] = ""
		}
	}
	return s
}

// Has reports whether token is present in the set, regardless of value.
func (s Set) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Agent returns the value of the 'agent' token, if present.
func (s Set) Agent() string {
	return s["agent"]
}

// String renders the set back into the whitespace-separated wire form, in
// a stable (sorted) order so tests can assert on it.
func (s Set) String() string {
	toks := make([]string, 0, len(s))
	for k, v := range s {
		if v == "" {
			toks = append(toks, k)
		} else {
			toks = append(toks, k+"="+v)
		}
	}
	sort.Strings(toks)
	return strings.Join(toks, " ")
}

// ErrUnknownCapability is returned by Negotiate when the client selected a
// token the server never advertised.
type ErrUnknownCapability struct {
	Token string
}

func (e *ErrUnknownCapability) Error() string {
	return fmt.Sprintf("capability: client requested unadvertised capability %q", e.Token)
}

// Negotiate validates that every token in requested was present in
// advertised (the 'agent' token is exempt — either side may present an
// agent string unilaterally) and returns the effective set the session
// should honor, preferring requested's values (e.g. its agent string, if
// any) over advertised's.
//
// report-status-v2 subsumes report-status: if the client requested both,
// or just report-status-v2, the effective set reports only
// report-status-v2 as active via HasReportStatusV2.
func Negotiate(advertised, requested Set) (Set, error) {
	effective := make(Set, len(requested))
	for token, value := range requested {
		if token == "agent" {
			effective[token] = value
			continue
		}
		if !advertised.Has(token) {
			return nil, &ErrUnknownCapability{Token: token}
		}
		effective[token] = value
	}
	return effective, nil
}

// HasReportStatusV2 reports whether the v2 report-status format should be
// used, applying the subsumption rule.
func (s Set) HasReportStatusV2() bool {
	return s.Has(ReportStatusV2)
}

// HasReportStatus reports whether any report-status variant was negotiated.
func (s Set) HasReportStatus() bool {
	return s.Has(ReportStatus) || s.Has(ReportStatusV2)
}
