package session

import "github.com/grafana/git-receive-pack/command"

// RefStore is the final ref-write collaborator: all cross-session
// synchronization is confined to this one step, via per-ref locks the
// store itself provides. Write should perform the equivalent of a
// compare-and-swap against cmd.Old (or a plain create/delete), returning
// an error if the ref no longer matches the expected old value or cannot
// be locked.
//
//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -o fakes/refstore.go . RefStore
type RefStore interface {
	Write(cmd command.Update) error
}
