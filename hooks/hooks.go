// Package hooks runs the three administrator-defined push hooks
// (pre-receive, update, post-receive) as child processes, enforcing a
// wall-clock timeout, an output-size cap per stream, and optional
// sideband relay of live stderr. The timeout is an explicit
// kill-after-deadline aimed at the child's whole process group, and the
// three concurrent stdio streams per invocation (stdin writer, stdout
// drain, stderr drain/relay) are coordinated with
// golang.org/x/sync/errgroup.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grafana/git-receive-pack/cancel"
	"github.com/grafana/git-receive-pack/childproc"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/config"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pktline"
)

// Name identifies which of the three standardized hooks is being run.
type Name string

const (
	PreReceive  Name = "pre-receive"
	Update      Name = "update"
	PostReceive Name = "post-receive"
)

// RunState is a hook invocation's position in its state machine.
type RunState int

const (
	Spawned RunState = iota
	Running
	TimedOut
	Crashed
	Finished
)

// Result is the outcome of one hook invocation: whether it's
// considered to have allowed its subject,
// the process exit code if it ran to completion, captured/relayed
// stdout and stderr (each capped), and truncation flags.
type Result struct {
	State    RunState
	Allowed  bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	StdoutTruncated bool
	StderrTruncated bool

	// Message is set on denial: "timeout", "crashed: <err>", or
	// "<hook> hook declined" for a non-zero exit. The process's own
	// stderr is in Stderr, not in Message.
	Message string
}

// Config is the hooks.* configuration the dispatcher consults.
type Config struct {
	Timeout       time.Duration
	MaxOutputSize int64
	SidebandRelay bool
	ExtraEnv      map[string]string
}

// DefaultTimeout and DefaultMaxOutputSize apply when hooks.timeout /
// hooks.maxOutputSize are unset.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultMaxOutputSize = 1 << 20
)

// FromSnapshot builds a Config from the opaque configuration map.
func FromSnapshot(s config.Snapshot) Config {
	return Config{
		Timeout:       s.Duration("hooks.timeout", DefaultTimeout),
		MaxOutputSize: int64(s.Int("hooks.maxOutputSize", DefaultMaxOutputSize)),
		SidebandRelay: s.Bool("hooks.sidebandRelay", false),
		ExtraEnv:      s.WithEnvPrefix("hooks.environment."),
	}
}

// Dispatcher runs hook scripts for a single session.
type Dispatcher struct {
	Config Config
	// NewRunner constructs a fresh childproc.Runner for each invocation;
	// tests substitute a factory returning a scripted fake.
	NewRunner func() childproc.Runner
	// HookPath resolves a hook name to its executable path, or "" if the
	// hook is not installed (in which case the dispatcher treats it as
	// Allowed with no output).
	HookPath func(name Name) string
	// Env is the base environment (quarantine alternates, GIT_DIR, etc.)
	// every hook is spawned with, before Config.ExtraEnv is applied.
	Env []string
	// Dir is the working directory hooks are spawned in (the repository
	// root).
	Dir string
	// Sideband, if set and Config.SidebandRelay is true, receives live
	// stderr framed on channel 2 as it arrives.
	Sideband *pktline.Writer
}

func (d *Dispatcher) runnerEnv() []string {
	env := append([]string{}, d.Env...)
	for k, v := range d.Config.ExtraEnv {
		env = append(env, k+"="+v)
	}
	return env
}

// capWriter caps how many bytes are retained from a stream, tracking
// whether the underlying data exceeded that cap.
type capWriter struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

// run spawns argv, writes stdin (closing it when done), drains
// stdout/stderr concurrently under the configured caps, relays stderr
// over sideband if enabled, and enforces the wall-clock timeout with an
// explicit kill-after-deadline so the whole process group is signaled
// rather than relying on context cancellation alone.
func (d *Dispatcher) run(ctx context.Context, name Name, argv []string, stdin []byte) (Result, error) {
	if flag := cancel.FromContextOrNoop(ctx); flag.IsRequested() {
		return Result{}, cancel.ErrCancelled
	}

	path := ""
	if d.HookPath != nil {
		path = d.HookPath(name)
	}
	if path == "" {
		return Result{State: Finished, Allowed: true}, nil
	}
	argv = append([]string{path}, argv...)

	runCtx, cancelRun := context.WithTimeout(ctx, d.timeout())
	defer cancelRun()

	runner := d.NewRunner()
	if err := runner.Start(runCtx, argv, d.runnerEnv(), d.Dir); err != nil {
		return Result{State: Crashed, Allowed: false, Message: fmt.Sprintf("crashed: %v", err)}, nil
	}
	killTimer := time.AfterFunc(d.timeout(), func() { runner.Kill() })
	defer killTimer.Stop()

	stdoutCap := &capWriter{limit: d.maxOutputSize()}
	stderrCap := &capWriter{limit: d.maxOutputSize()}

	var eg errgroup.Group
	eg.Go(func() error {
		defer runner.Stdin().Close()
		_, err := runner.Stdin().Write(stdin)
		return err
	})
	eg.Go(func() error {
		_, err := io.Copy(stdoutCap, runner.Stdout())
		return err
	})
	eg.Go(func() error {
		return drainStderr(runner.Stderr(), stderrCap, d.Config.SidebandRelay, d.Sideband)
	})

	ioErr := eg.Wait()
	exitCode, waitErr := runner.Wait()

	state := Finished
	allowed := true
	message := ""

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		state = TimedOut
		allowed = false
		message = "timeout"
		runner.Kill()
	case waitErr != nil:
		state = Crashed
		allowed = false
		message = fmt.Sprintf("crashed: %v", waitErr)
	case exitCode != 0:
		state = Finished
		allowed = false
		message = fmt.Sprintf("%s hook declined", name)
	case ioErr != nil:
		state = Crashed
		allowed = false
		message = fmt.Sprintf("crashed: %v", ioErr)
	}

	return Result{
		State:           state,
		Allowed:         allowed,
		ExitCode:        exitCode,
		Stdout:          stdoutCap.buf.Bytes(),
		Stderr:          stderrCap.buf.Bytes(),
		StdoutTruncated: stdoutCap.truncated,
		StderrTruncated: stderrCap.truncated,
		Message:         message,
	}, nil
}

func drainStderr(r io.Reader, capw *capWriter, relay bool, sideband *pktline.Writer) error {
	if !relay || sideband == nil {
		_, err := io.Copy(capw, r)
		return err
	}

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			capw.Write(buf[:n])
			if werr := sideband.WriteSideband(pktline.ChannelProgress, buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (d *Dispatcher) timeout() time.Duration {
	if d.Config.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Config.Timeout
}

func (d *Dispatcher) maxOutputSize() int64 {
	if d.Config.MaxOutputSize <= 0 {
		return DefaultMaxOutputSize
	}
	return d.Config.MaxOutputSize
}

// commandStdin renders list as the `<old> <new> <refname>\n` batch
// format pre-receive and post-receive read from stdin.
func commandStdin(list command.List) []byte {
	var buf bytes.Buffer
	for _, u := range list {
		buf.WriteString(command.FormatLine(u))
	}
	return buf.Bytes()
}

// hexOrZero renders an OID as its hex string at its own width,
// defaulting only the width-less Zero sentinel to 40 zeros, matching
// the wire representation every hook argv and stdin line uses.
func hexOrZero(o oid.OID) string {
	if len(o) == 0 {
		return strings.Repeat("0", 40)
	}
	return o.String()
}

// RunPreReceive runs the pre-receive hook once for the whole command
// list. A non-zero exit, timeout, or crash rejects the entire push.
func (d *Dispatcher) RunPreReceive(ctx context.Context, list command.List) (Result, error) {
	return d.run(ctx, PreReceive, nil, commandStdin(list))
}

// RunUpdate runs the update hook once per command, after policy has
// allowed it. A non-zero exit, timeout, or crash rejects only that
// command.
func (d *Dispatcher) RunUpdate(ctx context.Context, cmd command.Update) (Result, error) {
	argv := []string{cmd.Name, hexOrZero(cmd.Old), hexOrZero(cmd.New)}
	return d.run(ctx, Update, argv, nil)
}

// RunPostReceive runs the post-receive hook once, after refs have been
// written. Its failures are never reported to the client, only
// returned for the caller to log.
func (d *Dispatcher) RunPostReceive(ctx context.Context, list command.List) (Result, error) {
	return d.run(ctx, PostReceive, nil, commandStdin(list))
}
