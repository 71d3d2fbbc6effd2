package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/grafana/git-receive-pack/errs"
	"github.com/stretchr/testify/require"
)

func TestIsSentinel(t *testing.T) {
	err := errs.New(errs.KindCancelled, "deadline hit", nil)
	require.True(t, errors.Is(err, errs.Cancelled))
	require.False(t, errors.Is(err, errs.Validation))
}

func TestUnwrap(t *testing.T) {
	underlying := fmt.Errorf("boom")
	err := errs.New(errs.KindIO, "write failed", underlying)
	require.ErrorIs(t, err, underlying)
}

func TestHookRejected(t *testing.T) {
	code := 1
	err := errs.HookRejected("pre-receive", "non-zero exit", &code, nil)
	require.Equal(t, "pre-receive", err.HookName)
	require.Equal(t, 1, *err.ExitCode)
	require.True(t, errors.Is(err, errs.HookRejectedKind))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "policy-denied", errs.KindPolicyDenied.String())
}
