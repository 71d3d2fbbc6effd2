// Package procreceive implements the proc-receive delegation protocol: a
// pkt-line conversation with an external helper process that can accept,
// reject, or rewrite individual commands before the ordinary
// pre-receive -> policy -> update sequence continues.
package procreceive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grafana/git-receive-pack/childproc"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/config"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pktline"
)

// ProtocolVersion is the only version this module speaks.
const ProtocolVersion = "version=1"

// ErrVersionMismatch is returned when the helper replies with a
// different version line during the handshake.
var ErrVersionMismatch = fmt.Errorf("procreceive: helper version mismatch")

// ErrHelperCrashed is returned when the helper process exits non-zero or
// the conversation ends unexpectedly; fatal for every command the
// helper was handed.
var ErrHelperCrashed = fmt.Errorf("procreceive: helper crashed")

// Route is one configured proc-receive route: commands whose refname
// has this prefix are delegated to the helper instead of going straight
// to pre-receive.
type Route struct {
	Prefix string
}

// Config is the procReceive.* configuration this package consults.
type Config struct {
	Enabled bool
	Routes  []Route
	Argv    []string
	// Version is the protocol version to require of the helper. Only 1
	// is implemented.
	Version int
	// Timeout bounds the whole helper conversation, mirroring the hook
	// dispatcher's wall-clock timeout.
	Timeout time.Duration
}

// DefaultTimeout bounds the helper conversation when procReceive.timeout
// is unset, matching the hook dispatcher's default.
const DefaultTimeout = 30 * time.Second

// FromSnapshot builds a Config from the opaque configuration map. Routes
// are read from the comma-separated "procReceive.refs" key, the helper
// executable from "procReceive.helperPath".
func FromSnapshot(s config.Snapshot) Config {
	cfg := Config{
		Enabled: s.Bool("procReceive.enabled", false),
		Version: s.Int("procReceive.version", 1),
		Timeout: s.Duration("procReceive.timeout", DefaultTimeout),
	}
	if raw := s.String("procReceive.refs", ""); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Routes = append(cfg.Routes, Route{Prefix: p})
			}
		}
	}
	if path := s.String("procReceive.helperPath", ""); path != "" {
		cfg.Argv = []string{path}
	}
	return cfg
}

// Matches reports whether any configured route covers name.
func (c Config) Matches(name string) bool {
	for _, r := range c.Routes {
		if strings.HasPrefix(name, r.Prefix) {
			return true
		}
	}
	return false
}

// Selected partitions list into the commands a proc-receive helper
// should handle and the rest, preserving order within each group.
func Selected(cfg Config, list command.List) (delegated, rest command.List) {
	if !cfg.Enabled {
		return nil, list
	}
	for _, u := range list {
		if cfg.Matches(u.Name) {
			delegated = append(delegated, u)
		} else {
			rest = append(rest, u)
		}
	}
	return delegated, rest
}

// Outcome is the helper's verdict on one delegated command.
type Outcome struct {
	Accepted bool
	Reason   string
	// RewrittenName and RewrittenNew are set when the helper attached
	// `option refname=...` / `option new-oid=...` lines to this command.
	RewrittenName string
	RewrittenNew  oid.OID
}

// Apply rewrites cmd according to outcome: a changed refname or new OID
// from the helper's option lines. It does not record a rejection; that
// is left to the caller. Commands the
// helper never mentioned are returned unchanged by the caller, which
// should not call Apply for them.
func Apply(cmd command.Update, outcome Outcome) command.Update {
	if outcome.RewrittenName != "" {
		cmd.Name = outcome.RewrittenName
	}
	if !outcome.RewrittenNew.IsZero() {
		cmd.New = outcome.RewrittenNew
		cmd.Op = command.Classify(cmd.Old, cmd.New)
	}
	return cmd
}

// Run drives one proc-receive helper invocation for a batch of delegated
// commands: version handshake, the command/push-option conversation, and
// the ok/ng/option response, returning an Outcome per refname the helper
// mentioned. Commands the helper never mentions are absent from the
// result and keep whatever state they had before delegation.
func Run(ctx context.Context, runner childproc.Runner, argv, env []string, dir string, delegated command.List, pushOptions []string) (map[string]Outcome, error) {
	if err := runner.Start(ctx, argv, env, dir); err != nil {
		return nil, fmt.Errorf("%w: starting helper: %v", ErrHelperCrashed, err)
	}

	w := pktline.NewWriter(runner.Stdin())
	r := pktline.NewReader(runner.Stdout())

	if err := handshake(w, r); err != nil {
		runner.Kill()
		return nil, err
	}

	if err := writeCommands(w, delegated, pushOptions); err != nil {
		runner.Kill()
		return nil, fmt.Errorf("%w: writing commands: %v", ErrHelperCrashed, err)
	}

	outcomes, err := readResponse(r)
	if err != nil {
		runner.Kill()
		return nil, fmt.Errorf("%w: reading response: %v", ErrHelperCrashed, err)
	}

	runner.Stdin().Close()
	exitCode, waitErr := runner.Wait()
	if waitErr != nil || exitCode != 0 {
		return nil, fmt.Errorf("%w: exit %d: %v", ErrHelperCrashed, exitCode, waitErr)
	}

	return outcomes, nil
}

func handshake(w *pktline.Writer, r *pktline.Reader) error {
	if err := w.WriteLine(ProtocolVersion); err != nil {
		return fmt.Errorf("%w: writing version: %v", ErrHelperCrashed, err)
	}
	if err := w.WriteFlush(); err != nil {
		return fmt.Errorf("%w: flushing version: %v", ErrHelperCrashed, err)
	}

	lines, kind, err := r.ReadLines()
	if err != nil {
		return fmt.Errorf("%w: reading version: %v", ErrHelperCrashed, err)
	}
	if kind != pktline.KindFlush || len(lines) != 1 {
		return fmt.Errorf("%w: malformed version reply", ErrHelperCrashed)
	}
	if strings.TrimSuffix(string(lines[0]), "\n") != ProtocolVersion {
		return ErrVersionMismatch
	}
	return nil
}

func writeCommands(w *pktline.Writer, delegated command.List, pushOptions []string) error {
	for _, u := range delegated {
		if err := w.WriteLine(command.FormatLine(u)); err != nil {
			return err
		}
	}
	if err := w.WriteFlush(); err != nil {
		return err
	}

	for _, opt := range pushOptions {
		if err := w.WriteLine(opt); err != nil {
			return err
		}
	}
	return w.WriteFlush()
}

func readResponse(r *pktline.Reader) (map[string]Outcome, error) {
	lines, kind, err := r.ReadLines()
	if err != nil {
		return nil, err
	}
	if kind != pktline.KindFlush {
		return nil, fmt.Errorf("%w: response not flush-terminated", ErrHelperCrashed)
	}

	outcomes := make(map[string]Outcome)
	var current string

	for _, raw := range lines {
		line := strings.TrimSuffix(string(raw), "\n")

		switch {
		case strings.HasPrefix(line, "ok "):
			current = strings.TrimPrefix(line, "ok ")
			outcomes[current] = Outcome{Accepted: true}
		case strings.HasPrefix(line, "ng "):
			rest := strings.TrimPrefix(line, "ng ")
			name, reason, _ := strings.Cut(rest, " ")
			current = name
			outcomes[current] = Outcome{Accepted: false, Reason: reason}
		case strings.HasPrefix(line, "option "):
			if current == "" {
				return nil, fmt.Errorf("%w: option line with no preceding ref", ErrHelperCrashed)
			}
			if err := applyOption(outcomes, current, strings.TrimPrefix(line, "option ")); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unrecognized response line %q", ErrHelperCrashed, line)
		}
	}

	return outcomes, nil
}

func applyOption(outcomes map[string]Outcome, current, kv string) error {
	key, value, _ := strings.Cut(kv, "=")
	o := outcomes[current]

	switch key {
	case "refname":
		o.RewrittenName = value
	case "new-oid":
		id, err := oid.FromHex(value)
		if err != nil {
			return fmt.Errorf("%w: bad new-oid %q: %v", ErrHelperCrashed, value, err)
		}
		o.RewrittenNew = id
	}

	outcomes[current] = o
	return nil
}
