package procreceive_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grafana/git-receive-pack/childproc"
	"github.com/grafana/git-receive-pack/childproc/fakes"
	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/config"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pktline"
	"github.com/grafana/git-receive-pack/procreceive"
)

func scriptHelperReply(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, w.WriteLine(procreceive.ProtocolVersion))
	require.NoError(t, w.WriteFlush())
	for _, l := range lines {
		require.NoError(t, w.WriteLine(l))
	}
	require.NoError(t, w.WriteFlush())
	return &buf
}

func TestFromSnapshot(t *testing.T) {
	s := config.Snapshot{
		"procReceive.enabled":    "true",
		"procReceive.refs":       "refs/for/, refs/review/",
		"procReceive.helperPath": "/usr/bin/proc-receive",
		"procReceive.timeout":    "5000",
	}
	cfg := procreceive.FromSnapshot(s)
	require.True(t, cfg.Enabled)
	require.Equal(t, []procreceive.Route{{Prefix: "refs/for/"}, {Prefix: "refs/review/"}}, cfg.Routes)
	require.Equal(t, []string{"/usr/bin/proc-receive"}, cfg.Argv)
	require.Equal(t, 1, cfg.Version)
	require.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestFromSnapshot_Defaults(t *testing.T) {
	cfg := procreceive.FromSnapshot(nil)
	require.False(t, cfg.Enabled)
	require.Equal(t, 1, cfg.Version)
	require.Equal(t, procreceive.DefaultTimeout, cfg.Timeout)
}

func TestSelected_PartitionsByRoute(t *testing.T) {
	cfg := procreceive.Config{Enabled: true, Routes: []procreceive.Route{{Prefix: "refs/for/"}}}
	list := command.List{
		{Name: "refs/for/main", Old: oid.Zero, New: oid.MustFromHex("1111111111111111111111111111111111111111")},
		{Name: "refs/heads/main", Old: oid.Zero, New: oid.MustFromHex("2222222222222222222222222222222222222222")},
	}

	delegated, rest := procreceive.Selected(cfg, list)
	require.Len(t, delegated, 1)
	require.Equal(t, "refs/for/main", delegated[0].Name)
	require.Len(t, rest, 1)
	require.Equal(t, "refs/heads/main", rest[0].Name)
}

func TestSelected_DisabledDelegatesNothing(t *testing.T) {
	cfg := procreceive.Config{Enabled: false, Routes: []procreceive.Route{{Prefix: "refs/for/"}}}
	list := command.List{{Name: "refs/for/main", Old: oid.Zero, New: oid.MustFromHex("1111111111111111111111111111111111111111")}}

	delegated, rest := procreceive.Selected(cfg, list)
	require.Empty(t, delegated)
	require.Len(t, rest, 1)
}

func TestRun_AcceptsAndRewrites(t *testing.T) {
	runner := fakes.NewFakeRunner()
	newOID := "3333333333333333333333333333333333333333"
	runner.StdoutBuf = scriptHelperReply(t,
		"ok refs/for/main",
		"option new-oid="+newOID,
		"ng refs/for/other rejected-by-helper",
	)

	delegated := command.List{
		{Name: "refs/for/main", Old: oid.Zero, New: oid.MustFromHex("1111111111111111111111111111111111111111")},
		{Name: "refs/for/other", Old: oid.Zero, New: oid.MustFromHex("2222222222222222222222222222222222222222")},
	}

	outcomes, err := procreceive.Run(context.Background(), childproc.Runner(runner), []string{"/bin/helper"}, nil, "", delegated, nil)
	require.NoError(t, err)

	require.True(t, outcomes["refs/for/main"].Accepted)
	require.Equal(t, newOID, outcomes["refs/for/main"].RewrittenNew.String())

	require.False(t, outcomes["refs/for/other"].Accepted)
	require.Equal(t, "rejected-by-helper", outcomes["refs/for/other"].Reason)
}

func TestRun_VersionMismatchIsFatal(t *testing.T) {
	runner := fakes.NewFakeRunner()
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	require.NoError(t, w.WriteLine("version=2"))
	require.NoError(t, w.WriteFlush())
	runner.StdoutBuf = &buf

	_, err := procreceive.Run(context.Background(), childproc.Runner(runner), []string{"/bin/helper"}, nil, "", nil, nil)
	require.ErrorIs(t, err, procreceive.ErrVersionMismatch)
}

func TestRun_HelperCrashIsFatal(t *testing.T) {
	runner := fakes.NewFakeRunner()
	runner.StartErr = context.DeadlineExceeded

	_, err := procreceive.Run(context.Background(), childproc.Runner(runner), []string{"/bin/helper"}, nil, "", nil, nil)
	require.ErrorIs(t, err, procreceive.ErrHelperCrashed)
}

func TestRun_NonZeroExitIsFatal(t *testing.T) {
	runner := fakes.NewFakeRunner()
	runner.StdoutBuf = scriptHelperReply(t)
	runner.WaitExitCode = 1

	_, err := procreceive.Run(context.Background(), childproc.Runner(runner), []string{"/bin/helper"}, nil, "", nil, nil)
	require.ErrorIs(t, err, procreceive.ErrHelperCrashed)
}

func TestApply_RewritesNameAndOID(t *testing.T) {
	cmd := command.Update{Name: "refs/for/main", Old: oid.Zero, New: oid.MustFromHex("1111111111111111111111111111111111111111")}
	newOID := oid.MustFromHex("4444444444444444444444444444444444444444")

	rewritten := procreceive.Apply(cmd, procreceive.Outcome{Accepted: true, RewrittenName: "refs/heads/main", RewrittenNew: newOID})
	require.Equal(t, "refs/heads/main", rewritten.Name)
	require.True(t, rewritten.New.Is(newOID))
	require.Equal(t, command.OpCreate, rewritten.Op)
}
