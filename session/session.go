package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/grafana/git-receive-pack/ancestry"
	"github.com/grafana/git-receive-pack/cancel"
	"github.com/grafana/git-receive-pack/childproc"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/config"
	"github.com/grafana/git-receive-pack/hooks"
	"github.com/grafana/git-receive-pack/log"
	"github.com/grafana/git-receive-pack/pktline"
	"github.com/grafana/git-receive-pack/policy"
	"github.com/grafana/git-receive-pack/procreceive"
	"github.com/grafana/git-receive-pack/pushopts"
	"github.com/grafana/git-receive-pack/quarantine"
	"github.com/grafana/git-receive-pack/shallow"
)

// Config is the driver's configuration: the policy and proc-receive
// sub-configs plus the driver's own settings. Hook settings are not part
// of it; they live in hooks.Config on Driver.Hooks.
type Config struct {
	Policy      policy.Config
	ProcReceive procreceive.Config
	// UnpackLimit is transfer.unpackLimit: packs at or under this object
	// count are unpacked into loose objects; 0 always indexes.
	UnpackLimit uint32

	MainObjectsDir string
	SessionID      string
	RepoDir        string
}

// ConfigFromSnapshot builds the driver's Config from the opaque
// configuration map, folding in the policy and proc-receive sub-configs
// so one call covers the receive.*, procReceive.* and transfer.unpackLimit
// keys. The hooks.* keys are read by hooks.FromSnapshot.
// headRefName is the ref HEAD symbolically points at, or "" if detached.
func ConfigFromSnapshot(s config.Snapshot, headRefName string) Config {
	limit := s.Int("transfer.unpackLimit", 0)
	if limit < 0 {
		limit = 0
	}
	return Config{
		Policy:      policy.FromSnapshot(s, headRefName),
		ProcReceive: procreceive.FromSnapshot(s),
		UnpackLimit: uint32(limit),
	}
}

// Driver sequences one push session's phases exactly once, strictly in
// order: ingest, proc-receive, pre-receive, policy, update, ref-write,
// post-receive, report-status. No phase overlaps another within a
// single Driver.Run call.
type Driver struct {
	Config Config

	// Store backs the policy engine's fast-forward checks.
	Store ancestry.Store
	// Worktree is consulted only for the updateInstead transform; nil is
	// treated as "always dirty" by the policy package.
	Worktree policy.WorktreeChecker
	// Refs performs the final, synchronized ref write. Required for any
	// command to actually be applied; a nil Refs makes every otherwise-
	// allowed command a no-op (useful for dry runs and report-status-only
	// tests).
	Refs RefStore
	// Hooks runs pre-receive/update/post-receive. A nil Hooks skips all
	// three, treating every command as hook-approved.
	Hooks *hooks.Dispatcher

	// NewProcReceiveRunner constructs a fresh child process runner for the
	// proc-receive helper, if any command is routed to it.
	NewProcReceiveRunner func() childproc.Runner
	ProcReceiveEnv       []string

	// Sideband, if set, receives policy warnings (deny-current-branch and
	// deny-delete-current in warn mode) framed on channel 2. Callers only
	// set it when the client negotiated side-band-64k.
	Sideband *pktline.Writer

	Cancel cancel.Flag
	Logger log.Logger
}

func (d *Driver) cancelFlag() cancel.Flag {
	if d.Cancel != nil {
		return d.Cancel
	}
	return cancel.Noop
}

func (d *Driver) logf(msg string, kv ...any) {
	if d.Logger != nil {
		d.Logger.Info(msg, kv...)
	}
}

// slot tracks one command's journey from the client's original request
// through proc-receive rewriting to its final policy decision.
type slot struct {
	orig      command.Update
	effective command.Update
	decision  policy.Decision
	resolved  bool
	options   []ReportOption
}

// Run drives req and pack through every phase and returns the
// report-status response. The returned error is non-nil only when
// cancellation was observed or quarantine publication itself failed
// after hooks had already approved the push; every other
// protocol-visible failure (validation, pack corruption,
// hook/policy/proc-receive denial) is represented in the returned
// Report, never as a Go error, since the client still needs a
// well-formed response in those cases.
func (d *Driver) Run(ctx context.Context, req Request, pack PackInput) (Report, error) {
	flag := d.cancelFlag()
	ctx = cancel.ToContext(ctx, flag)
	list := req.List
	opts := req.Options

	if flag.IsRequested() {
		return cancelledReport(list), fmt.Errorf("session: %w", cancel.ErrCancelled)
	}

	if _, err := shallow.FromOptions(opts); err != nil {
		return sessionFatalReport(list, "invalid shallow request: "+err.Error()), nil
	}

	q, err := quarantine.New(d.Config.MainObjectsDir, d.Config.SessionID)
	if err != nil {
		return sessionFatalReport(list, "could not stage objects"), nil
	}
	defer q.Close()

	if _, err := IngestPack(q, pack, d.Config.UnpackLimit, flag); err != nil {
		q.Abort()
		if errors.Is(err, cancel.ErrCancelled) {
			return cancelledReport(list), fmt.Errorf("session: %w", cancel.ErrCancelled)
		}
		return sessionFatalReport(list, "pack corrupt"), nil
	}

	if flag.IsRequested() {
		q.Abort()
		return cancelledReport(list), fmt.Errorf("session: %w", cancel.ErrCancelled)
	}

	slots := make([]slot, len(list))
	for i, cmd := range list {
		slots[i] = slot{orig: cmd, effective: cmd}
	}

	if err := d.runProcReceive(ctx, slots, opts, q); err != nil {
		q.Abort()
		return sessionFatalReport(list, "proc-receive failed"), nil
	}

	effectiveList := make(command.List, len(slots))
	for i, s := range slots {
		effectiveList[i] = s.effective
	}

	if d.Hooks != nil {
		res, err := d.Hooks.RunPreReceive(ctx, effectiveList)
		if err != nil {
			q.Abort()
			return cancelledReport(list), fmt.Errorf("session: %w", err)
		}
		if !res.Allowed {
			q.Abort()
			return preReceiveRejectedReport(list), nil
		}
	}

	anyDenied := d.runPolicy(ctx, slots, flag)
	if flag.IsRequested() {
		q.Abort()
		return cancelledReport(list), fmt.Errorf("session: %w", cancel.ErrCancelled)
	}
	propagateAtomic(slots, opts.Atomic, anyDenied)

	anyDenied = d.runUpdateHooks(ctx, slots, flag) || anyDenied
	if flag.IsRequested() {
		q.Abort()
		return cancelledReport(list), fmt.Errorf("session: %w", cancel.ErrCancelled)
	}
	propagateAtomic(slots, opts.Atomic, anyDenied)

	writeAny := !(opts.Atomic && anyDenied)

	var written command.List
	if writeAny {
		if err := d.commitIfNeeded(slots, q); err != nil {
			return sessionFatalReport(list, "failed to publish objects"), fmt.Errorf("session: %w", err)
		}
		written = d.writeRefs(slots, opts.Atomic, flag)
	} else {
		q.Abort()
	}

	if len(written) > 0 && d.Hooks != nil {
		res, err := d.Hooks.RunPostReceive(ctx, written)
		if err != nil || !res.Allowed {
			d.logf("post-receive hook reported a problem", "error", err, "message", res.Message)
		}
	}

	return buildReport(slots), nil
}

// runProcReceive delegates matching commands to the configured helper and
// folds its verdicts into slots. Nothing is delegated unless proc-receive
// is enabled. Returning a non-nil error means delegation could not be
// attempted at all (no runner factory, or an unsupported protocol
// version); any failure of the helper itself, including a failure to
// spawn it, only denies the commands it was handed, recorded directly in
// slots.
func (d *Driver) runProcReceive(ctx context.Context, slots []slot, opts pushopts.Options, q *quarantine.Quarantine) error {
	if !d.Config.ProcReceive.Enabled {
		return nil
	}
	delegated := make(command.List, 0, len(slots))
	for _, s := range slots {
		if d.Config.ProcReceive.Matches(s.orig.Name) {
			delegated = append(delegated, s.orig)
		}
	}
	if len(delegated) == 0 {
		return nil
	}
	if d.NewProcReceiveRunner == nil {
		return fmt.Errorf("session: proc-receive routes configured but no runner factory set")
	}
	if v := d.Config.ProcReceive.Version; v != 0 && v != 1 {
		return fmt.Errorf("session: proc-receive protocol version %d not implemented", v)
	}

	if t := d.Config.ProcReceive.Timeout; t > 0 {
		var cancelRun context.CancelFunc
		ctx, cancelRun = context.WithTimeout(ctx, t)
		defer cancelRun()
	}

	runner := d.NewProcReceiveRunner()
	env := append(append([]string{}, d.ProcReceiveEnv...), q.Env()...)

	outcomes, err := procreceive.Run(ctx, runner, d.Config.ProcReceive.Argv, env, d.Config.RepoDir, delegated, opts.PushOptions)
	if err != nil {
		for i := range slots {
			if d.Config.ProcReceive.Matches(slots[i].orig.Name) {
				slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonProcReceiveRejected, Message: "proc-receive helper crashed"}
				slots[i].resolved = true
			}
		}
		return nil
	}

	for i := range slots {
		if !d.Config.ProcReceive.Matches(slots[i].orig.Name) {
			continue
		}
		outcome, seen := outcomes[slots[i].orig.Name]
		switch {
		case !seen:
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonProcReceiveRejected, Message: "not handled by proc-receive"}
		case !outcome.Accepted:
			msg := outcome.Reason
			if msg == "" {
				msg = policy.ReasonProcReceiveRejected.Message()
			}
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonProcReceiveRejected, Message: msg}
		default:
			slots[i].effective = procreceive.Apply(slots[i].orig, outcome)
			if outcome.RewrittenName != "" {
				slots[i].options = append(slots[i].options, ReportOption{Key: "refname", Value: outcome.RewrittenName})
			}
			if !outcome.RewrittenNew.IsZero() {
				slots[i].options = append(slots[i].options, ReportOption{Key: "new-oid", Value: outcome.RewrittenNew.String()})
			}
			slots[i].decision = policy.Decision{Outcome: policy.Allowed}
		}
		slots[i].resolved = true
	}
	return nil
}

// runPolicy evaluates every unresolved slot (commands proc-receive did
// not claim) through the policy engine, in wire order. It returns
// whether any command was denied, including ones already resolved by
// proc-receive.
func (d *Driver) runPolicy(ctx context.Context, slots []slot, flag cancel.Flag) bool {
	anyDenied := false
	for i := range slots {
		if slots[i].resolved {
			if slots[i].decision.Outcome == policy.Denied {
				anyDenied = true
			}
			continue
		}
		if flag.IsRequested() {
			return anyDenied
		}
		decision, err := policy.Decide(ctx, d.Config.Policy, d.Store, d.Worktree, slots[i].effective)
		if err != nil {
			decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonMissingObject, Message: err.Error()}
		}
		slots[i].decision = decision
		slots[i].resolved = true
		if decision.Outcome == policy.Denied {
			anyDenied = true
		}
		if decision.Warning != "" && d.Sideband != nil {
			if err := d.Sideband.WriteSideband(pktline.ChannelProgress, []byte("warning: "+decision.Warning+"\n")); err != nil {
				d.logf("failed to relay policy warning", "error", err)
			}
		}
	}
	return anyDenied
}

// runUpdateHooks runs the update hook once per still-allowed command,
// checking flag between invocations so a cancellation requested
// mid-batch stops further hook spawns instead of running the remainder
// to completion. Returns whether any newly became denied.
func (d *Driver) runUpdateHooks(ctx context.Context, slots []slot, flag cancel.Flag) bool {
	anyDenied := false
	for i := range slots {
		if slots[i].decision.Outcome == policy.Denied || d.Hooks == nil {
			continue
		}
		if flag.IsRequested() {
			return anyDenied
		}
		res, err := d.Hooks.RunUpdate(ctx, slots[i].effective)
		if err != nil || !res.Allowed {
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonHookRejected, Message: "update hook declined"}
			anyDenied = true
		}
	}
	return anyDenied
}

// propagateAtomic re-reports every non-denied command as Denied(Atomic)
// once any command has been denied, if atomic was negotiated.
func propagateAtomic(slots []slot, atomic, anyDenied bool) {
	if !atomic || !anyDenied {
		return
	}
	for i := range slots {
		if slots[i].decision.Outcome != policy.Denied {
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonAtomic, Message: policy.ReasonAtomic.Message()}
		}
	}
}

// commitIfNeeded publishes the quarantine's objects if at least one
// command will actually be written, aborting otherwise.
func (d *Driver) commitIfNeeded(slots []slot, q *quarantine.Quarantine) error {
	for _, s := range slots {
		if s.decision.Outcome != policy.Denied {
			return q.Commit()
		}
	}
	return q.Abort()
}

// writeRefs writes every non-denied command via Refs, in wire order. A
// write failure denies that command with ReasonRefLockFailed; under
// atomic semantics it also stops further writes and denies the rest with
// ReasonAtomic, since a partial atomic push is a contradiction in terms.
func (d *Driver) writeRefs(slots []slot, atomic bool, flag cancel.Flag) command.List {
	if d.Refs == nil {
		return nil
	}

	var written command.List
	failed := false
	for i := range slots {
		if slots[i].decision.Outcome == policy.Denied {
			continue
		}
		if atomic && failed {
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonAtomic, Message: policy.ReasonAtomic.Message()}
			continue
		}
		if flag.IsRequested() {
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonRefLockFailed, Message: "session cancelled"}
			failed = true
			continue
		}
		if err := d.Refs.Write(slots[i].effective); err != nil {
			slots[i].decision = policy.Decision{Outcome: policy.Denied, Reason: policy.ReasonRefLockFailed, Message: policy.ReasonRefLockFailed.Message()}
			failed = true
			continue
		}
		written = append(written, slots[i].effective)
	}
	return written
}
