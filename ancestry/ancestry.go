// Package ancestry answers the policy engine's one real question: is old
// reachable from new in the commit graph? (i.e. is this update a
// fast-forward?) It walks parsed Commit objects breadth-first out of a
// Store with a visited set, so merge-heavy histories are each visited
// once.
package ancestry

import (
	"context"
	"errors"
	"fmt"

	"github.com/grafana/git-receive-pack/cancel"
	"github.com/grafana/git-receive-pack/oid"
)

// ErrMissingObject is returned when the walk's starting commit (new)
// cannot be found in the Store. A missing starting point is a hard
// error, never reported as "not a fast-forward".
var ErrMissingObject = errors.New("ancestry: commit object missing")

// checkEvery bounds how often the cancellation flag is polled during a
// walk, so a pathologically long history doesn't delay cancellation
// response but the flag isn't re-read on every single node either.
const checkEvery = 64

// IsAncestor reports whether old is reachable from new by following parent
// links, i.e. whether updating a ref from old to new is a fast-forward.
// old == new is trivially an ancestor (no-op update; callers should
// already have rejected old == new for a genuine Update command, but the
// walk itself is reflexive).
func IsAncestor(ctx context.Context, store Store, old, new oid.OID) (bool, error) {
	if old.Is(new) {
		return true, nil
	}

	if _, ok := store.Get(new); !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingObject, new)
	}

	flag := cancel.FromContextOrNoop(ctx)

	visited := make(map[string]struct{})
	queue := []oid.OID{new}
	n := 0

	for len(queue) > 0 {
		n++
		if n%checkEvery == 0 && flag.IsRequested() {
			return false, cancel.ErrCancelled
		}

		current := queue[0]
		queue = queue[1:]

		key := current.String()
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		if current.Is(old) {
			return true, nil
		}

		commit, ok := store.Get(current)
		if !ok {
			// A parent outside the store is assumed to already exist in
			// the main ODB and therefore cannot lead to old (which would
			// have been found by now if it were an ancestor via this
			// path); treat it as a dead end rather than an error, since
			// only the initial `new` lookup is a hard requirement.
			continue
		}

		queue = append(queue, commit.Parents...)
	}

	return false, nil
}

// Exists reports whether hash is present in the store.
func Exists(store Store, hash oid.OID) bool {
	_, ok := store.Get(hash)
	return ok
}
