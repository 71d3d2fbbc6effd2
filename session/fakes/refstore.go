// Package fakes provides hand-written test doubles for session's
// external collaborators, in the same scriptable-struct style as
// childproc/fakes.FakeRunner.
package fakes

import "github.com/grafana/git-receive-pack/command"

// FakeRefStore is a scriptable session.RefStore: Err, if set, is
// returned for every Write; Writes records every call in order so tests
// can assert exactly which refs were actually persisted.
type FakeRefStore struct {
	Err    error
	ErrFor map[string]error
	Writes []command.Update
}

// NewFakeRefStore returns a FakeRefStore that accepts every write.
func NewFakeRefStore() *FakeRefStore {
	return &FakeRefStore{ErrFor: make(map[string]error)}
}

// Write implements session.RefStore.
func (f *FakeRefStore) Write(cmd command.Update) error {
	if f.ErrFor != nil {
		if err, ok := f.ErrFor[cmd.Name]; ok {
			return err
		}
	}
	if f.Err != nil {
		return f.Err
	}
	f.Writes = append(f.Writes, cmd)
	return nil
}
