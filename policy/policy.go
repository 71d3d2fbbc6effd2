// Package policy implements the update/delete denial rules receive-pack
// applies to every command before hooks run: deny-deletes,
// deny-non-fast-forwards, deny-current-branch, deny-delete-current, and
// update-instead, evaluated in a fixed precedence so every command yields
// exactly one decision.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/grafana/git-receive-pack/ancestry"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/config"
)

// ReasonCode names why a command was denied or transformed.
type ReasonCode int

const (
	ReasonNone ReasonCode = iota
	ReasonDenyDeleteCurrent
	ReasonDenyCurrentBranch
	ReasonDenyDeletes
	ReasonDenyNonFastForward
	ReasonHookRejected
	ReasonProcReceiveRejected
	ReasonRefLockFailed
	ReasonMissingObject
	// ReasonAtomic is attached to the siblings of the one command whose
	// own denial caused an atomic push to fail as a whole; that command
	// keeps its own reason, while the siblings are reported with this code.
	ReasonAtomic
)

// Message is the wire-format reason string report-status emits for each
// code, matching the wording git's own receive-pack uses.
func (r ReasonCode) Message() string {
	switch r {
	case ReasonDenyDeleteCurrent:
		return "deletion of the current branch prohibited"
	case ReasonDenyCurrentBranch:
		return "branch is currently checked out"
	case ReasonDenyDeletes:
		return "deletion prohibited"
	case ReasonDenyNonFastForward:
		return "non-fast-forward"
	case ReasonHookRejected:
		return "hook declined"
	case ReasonProcReceiveRejected:
		return "proc-receive declined"
	case ReasonRefLockFailed:
		return "failed to lock"
	case ReasonMissingObject:
		return "missing object"
	case ReasonAtomic:
		return "atomic"
	default:
		return ""
	}
}

// Outcome is the tag of a Decision.
type Outcome int

const (
	Allowed Outcome = iota
	Denied
	Transformed
)

// Decision is the per-command result of policy evaluation.
type Decision struct {
	Outcome Outcome
	Reason  ReasonCode
	// Message is a human-readable explanation; for Denied this is what
	// report-status emits verbatim after "ng <refname> ".
	Message string
	// Warning is set when deny_current_branch=warn or
	// deny_delete_current=warn allows the command but wants a sideband
	// warning emitted.
	Warning string
}

func allow() Decision { return Decision{Outcome: Allowed} }

func deny(reason ReasonCode) Decision {
	return Decision{Outcome: Denied, Reason: reason, Message: reason.Message()}
}

// CurrentBranchMode is the value of receive.denyCurrentBranch.
type CurrentBranchMode string

const (
	ModeRefuse        CurrentBranchMode = "refuse"
	ModeWarn          CurrentBranchMode = "warn"
	ModeIgnore        CurrentBranchMode = "ignore"
	ModeUpdateInstead CurrentBranchMode = "updateInstead"
)

// DeleteCurrentMode is the value of receive.denyDeleteCurrent.
type DeleteCurrentMode string

const (
	DeleteModeRefuse DeleteCurrentMode = "refuse"
	DeleteModeWarn   DeleteCurrentMode = "warn"
	DeleteModeIgnore DeleteCurrentMode = "ignore"
)

// Config is the receive.* configuration the policy engine consults.
type Config struct {
	DenyDeletes         bool
	DenyNonFastForwards bool
	DenyCurrentBranch   CurrentBranchMode
	DenyDeleteCurrent   DeleteCurrentMode
	// HeadRefName is the fully-qualified ref HEAD symbolically points at,
	// or "" if HEAD is detached (in which case rules 1-2 are skipped).
	HeadRefName string
}

// FromSnapshot builds a Config from the opaque configuration map,
// applying the receive.updateInstead shortcut and the documented
// defaults.
func FromSnapshot(s config.Snapshot, headRefName string) Config {
	branchMode := CurrentBranchMode(s.String("receive.denyCurrentBranch", string(ModeRefuse)))
	if s.Bool("receive.updateInstead", false) {
		branchMode = ModeUpdateInstead
	}

	deleteMode := DeleteCurrentMode(s.String("receive.denyDeleteCurrent", string(DeleteModeRefuse)))

	return Config{
		DenyDeletes:         s.Bool("receive.denyDeletes", false),
		DenyNonFastForwards: s.Bool("receive.denyNonFastForwards", false),
		DenyCurrentBranch:   branchMode,
		DenyDeleteCurrent:   deleteMode,
		HeadRefName:         headRefName,
	}
}

// WorktreeChecker reports whether the worktree is clean, consulted only
// for the updateInstead transform. The worktree lives outside this
// module; a nil checker is treated as "always dirty", the conservative
// default, so updateInstead degrades to a denial rather than silently
// applying to a dirty tree.
type WorktreeChecker interface {
	IsClean(ctx context.Context) (bool, error)
}

// Decide evaluates the denial rules against cmd in fixed precedence
// (deny-delete-current, deny-current-branch, deny-deletes,
// deny-non-fast-forward) and returns exactly one Decision.
func Decide(ctx context.Context, cfg Config, store ancestry.Store, worktree WorktreeChecker, cmd command.Update) (Decision, error) {
	isCurrentBranch := cfg.HeadRefName != "" && cmd.Name == cfg.HeadRefName

	// Rule 1: deny_delete_current.
	if isCurrentBranch && cmd.Op == command.OpDelete {
		switch cfg.DenyDeleteCurrent {
		case DeleteModeIgnore:
		case DeleteModeWarn:
			d := allow()
			d.Warning = "deleting the current branch"
			return d, nil
		default:
			return deny(ReasonDenyDeleteCurrent), nil
		}
	}

	// Rule 2: deny_current_branch.
	if isCurrentBranch && cmd.Op == command.OpUpdate {
		switch cfg.DenyCurrentBranch {
		case ModeRefuse:
			return deny(ReasonDenyCurrentBranch), nil
		case ModeWarn:
			d := allow()
			d.Warning = "updating the current branch"
			return d, nil
		case ModeIgnore:
			return allow(), nil
		case ModeUpdateInstead:
			clean := false
			if worktree != nil {
				var err error
				clean, err = worktree.IsClean(ctx)
				if err != nil {
					return Decision{}, fmt.Errorf("policy: checking worktree: %w", err)
				}
			}
			if !clean {
				d := deny(ReasonDenyCurrentBranch)
				d.Message = "worktree is dirty, refusing to update-instead"
				return d, nil
			}
			return Decision{Outcome: Transformed, Reason: ReasonNone}, nil
		}
	}

	// Rule 3: deny_deletes.
	if cmd.Op == command.OpDelete {
		if cfg.DenyDeletes {
			return deny(ReasonDenyDeletes), nil
		}
		return allow(), nil
	}

	// Rule 4: deny_non_fast_forwards. Creates are never subject to this.
	if cmd.Op == command.OpUpdate && cfg.DenyNonFastForwards {
		isFF, err := ancestry.IsAncestor(ctx, store, cmd.Old, cmd.New)
		if err != nil {
			if errors.Is(err, ancestry.ErrMissingObject) {
				return deny(ReasonMissingObject), nil
			}
			return Decision{}, err
		}
		if !isFF {
			return deny(ReasonDenyNonFastForward), nil
		}
	}

	return allow(), nil
}
