package cancel_test

import (
	"context"
	"sync"
	"testing"

	"github.com/grafana/git-receive-pack/cancel"
	"github.com/stretchr/testify/require"
)

func TestFlagRequestIdempotent(t *testing.T) {
	f := cancel.New()
	require.False(t, f.IsRequested())
	f.Request()
	f.Request()
	require.True(t, f.IsRequested())
}

func TestNoop(t *testing.T) {
	cancel.Noop.Request()
	require.False(t, cancel.Noop.IsRequested())
}

func TestContextInjection(t *testing.T) {
	ctx := context.Background()
	require.Equal(t, cancel.Noop, cancel.FromContextOrNoop(ctx))
	require.Nil(t, cancel.FromContext(ctx))

	f := cancel.New()
	ctx = cancel.ToContext(ctx, f)
	require.Equal(t, f, cancel.FromContext(ctx))
	require.Equal(t, f, cancel.FromContextOrNoop(ctx))
}

func TestConcurrentRequest(t *testing.T) {
	f := cancel.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Request()
			_ = f.IsRequested()
		}()
	}
	wg.Wait()
	require.True(t, f.IsRequested())
}
