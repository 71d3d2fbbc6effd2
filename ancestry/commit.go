package ancestry

import (
	"time"

	"github.com/grafana/git-receive-pack/oid"
)

// Commit is the minimal parsed view of a Git commit object the policy
// engine's fast-forward check needs: its tree and its parents. Parents
// is a slice so merge commits are walked correctly.
type Commit struct {
	Hash      oid.OID
	Tree      oid.OID
	Parents   []oid.OID
	Author    Identity
	Committer Identity
	Message   string
}

// Time returns the commit's committer timestamp, the canonical "when was
// this commit created" answer.
func (c *Commit) Time() (time.Time, error) {
	return c.Committer.Time()
}
