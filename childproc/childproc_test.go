package childproc_test

import (
	"bufio"
	"context"
	"io"
	"testing"
	"time"

	"github.com/grafana/git-receive-pack/childproc"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_ExitCode(t *testing.T) {
	r := childproc.New()
	require.NoError(t, r.Start(context.Background(), []string{"true"}, nil, ""))

	code, err := r.Wait()
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := childproc.New()
	require.NoError(t, r.Start(context.Background(), []string{"false"}, nil, ""))

	code, err := r.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, code)
}

func TestExecRunner_StdinStdout(t *testing.T) {
	r := childproc.New()
	require.NoError(t, r.Start(context.Background(), []string{"cat"}, nil, ""))

	_, err := io.WriteString(r.Stdin(), "hello\n")
	require.NoError(t, err)
	require.NoError(t, r.Stdin().Close())

	line, err := bufio.NewReader(r.Stdout()).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "hello\n", line)

	code, err := r.Wait()
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestExecRunner_Kill(t *testing.T) {
	r := childproc.New()
	require.NoError(t, r.Start(context.Background(), []string{"sleep", "30"}, nil, ""))

	require.NoError(t, r.Kill())

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}

func TestExecRunner_EmptyArgv(t *testing.T) {
	r := childproc.New()
	err := r.Start(context.Background(), nil, nil, "")
	require.Error(t, err)
}
