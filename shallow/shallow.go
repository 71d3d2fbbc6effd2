// Package shallow validates and deduplicates the shallow/unshallow OID
// lists a client attaches to a push, producing a Plan the repository's
// shallow-boundary file can later be rewritten from.
package shallow

import (
	"fmt"

	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pushopts"
)

// Plan holds the deduplicated shallow boundary changes a push requests.
// ToAdd and ToRemove are disjoint by construction.
type Plan struct {
	ToAdd    []oid.OID
	ToRemove []oid.OID
}

// ErrOverlap is returned when an OID appears in both the shallow and
// unshallow lists.
type ErrOverlap struct {
	OID oid.OID
}

func (e *ErrOverlap) Error() string {
	return fmt.Sprintf("shallow: %s requested as both shallow and unshallow", e.OID)
}

// FromOptions is a pure function of opts: given the same ShallowOIDs and
// UnshallowOIDs it always produces the same Plan (or the same error).
func FromOptions(opts pushopts.Options) (Plan, error) {
	toAdd := dedupe(opts.ShallowOIDs)
	toRemove := dedupe(opts.UnshallowOIDs)

	removeSet := make(map[string]struct{}, len(toRemove))
	for _, o := range toRemove {
		removeSet[o.String()] = struct{}{}
	}
	for _, o := range toAdd {
		if _, ok := removeSet[o.String()]; ok {
			return Plan{}, &ErrOverlap{OID: o}
		}
	}

	return Plan{ToAdd: toAdd, ToRemove: toRemove}, nil
}

// dedupe removes duplicate OIDs while preserving first-seen order.
func dedupe(in []oid.OID) []oid.OID {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]oid.OID, 0, len(in))
	for _, o := range in {
		key := o.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	return out
}
