package ancestry

import (
	"context"

	"github.com/grafana/git-receive-pack/oid"
)

// Store is the read path into whatever holds parsed commit objects during
// ancestry walks: the quarantine's freshly-ingested commits plus, via the
// quarantine's alternates link, the main object database. The object
// database itself lives outside this module; Store is the seam a real
// implementation plugs into.
//
//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o fakes/store.go . Store
type Store interface {
	// Get returns the parsed commit for hash, if known.
	Get(hash oid.OID) (*Commit, bool)
	// Add records commits discovered while ingesting a pack or walking
	// ancestry, so repeated lookups don't re-parse.
	Add(commits ...*Commit)
	// Len reports how many commits are currently cached.
	Len() int
}

// storeKey is the context key under which a Store is injected, following
// the same context-value pattern used throughout this module for
// pluggable collaborators (cancel.Flag, log.Logger).
type storeKey struct{}

// ToContext attaches store to ctx.
func ToContext(ctx context.Context, store Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// FromContext retrieves the Store attached to ctx, or nil if none was set.
func FromContext(ctx context.Context) Store {
	store, _ := ctx.Value(storeKey{}).(Store)
	return store
}

// FromContextOrInMemory returns the Store attached to ctx, or a fresh
// InMemoryStore (attached to the returned context) if none was set.
func FromContextOrInMemory(ctx context.Context) (context.Context, Store) {
	if s := FromContext(ctx); s != nil {
		return ctx, s
	}
	s := NewInMemoryStore()
	return ToContext(ctx, s), s
}

// InMemoryStore is a Store backed by a plain map, suitable for a single
// session's lifetime.
type InMemoryStore map[string]*Commit

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() InMemoryStore {
	return make(InMemoryStore)
}

// Get implements Store.
func (s InMemoryStore) Get(hash oid.OID) (*Commit, bool) {
	c, ok := s[hash.String()]
	return c, ok
}

// Add implements Store.
func (s InMemoryStore) Add(commits ...*Commit) {
	for _, c := range commits {
		s[c.Hash.String()] = c
	}
}

// Len implements Store.
func (s InMemoryStore) Len() int {
	return len(s)
}
