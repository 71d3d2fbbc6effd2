package config_test

import (
	"testing"
	"time"

	"github.com/grafana/git-receive-pack/config"
	"github.com/stretchr/testify/require"
)

func TestBool(t *testing.T) {
	s := config.Snapshot{"receive.denyDeletes": "true"}
	require.True(t, s.Bool("receive.denyDeletes", false))
	require.False(t, s.Bool("receive.denyNonFastForwards", false))
	require.True(t, s.Bool("missing", true))
}

func TestDuration(t *testing.T) {
	s := config.Snapshot{"hooks.timeout": "5000"}
	require.Equal(t, 5*time.Second, s.Duration("hooks.timeout", 30*time.Second))
	require.Equal(t, 30*time.Second, s.Duration("missing", 30*time.Second))
	require.Equal(t, 30*time.Second, s.Duration("hooks.timeout2", 30*time.Second))
}

func TestWithEnvPrefix(t *testing.T) {
	s := config.Snapshot{
		"hooks.environment.GIT_DIR": "/repo.git",
		"hooks.environment.HOME":    "/home/git",
		"receive.denyDeletes":       "true",
	}
	env := s.WithEnvPrefix("hooks.environment.")
	require.Equal(t, map[string]string{"GIT_DIR": "/repo.git", "HOME": "/home/git"}, env)
}

func TestString(t *testing.T) {
	s := config.Snapshot{"receive.denyCurrentBranch": "warn"}
	require.Equal(t, "warn", s.String("receive.denyCurrentBranch", "refuse"))
	require.Equal(t, "refuse", s.String("missing", "refuse"))
}
