package oid_test

import (
	"strings"
	"testing"

	"github.com/grafana/git-receive-pack/oid"
	"github.com/stretchr/testify/require"
)

func TestFromHex(t *testing.T) {
	t.Run("empty string is zero", func(t *testing.T) {
		o, err := oid.FromHex("")
		require.NoError(t, err)
		require.True(t, o.IsZero())
	})

	t.Run("sha1 hex", func(t *testing.T) {
		h := strings.Repeat("a", 40)
		o, err := oid.FromHex(h)
		require.NoError(t, err)
		require.Equal(t, oid.SizeSHA1, o.Size())
		require.Equal(t, h, o.String())
	})

	t.Run("sha256 hex", func(t *testing.T) {
		h := strings.Repeat("b", 64)
		o, err := oid.FromHex(h)
		require.NoError(t, err)
		require.Equal(t, oid.SizeSHA256, o.Size())
	})

	t.Run("invalid length", func(t *testing.T) {
		_, err := oid.FromHex("abc")
		require.Error(t, err)
	})

	t.Run("invalid hex", func(t *testing.T) {
		_, err := oid.FromHex(strings.Repeat("z", 40))
		require.Error(t, err)
	})

	t.Run("all-zeros hex is zero", func(t *testing.T) {
		o, err := oid.FromHex(strings.Repeat("0", 40))
		require.NoError(t, err)
		require.True(t, o.IsZero())
	})
}

func TestMustFromHex(t *testing.T) {
	require.NotPanics(t, func() {
		oid.MustFromHex(strings.Repeat("a", 40))
	})
	require.Panics(t, func() {
		oid.MustFromHex("nope")
	})
}

func TestIs(t *testing.T) {
	a := oid.MustFromHex(strings.Repeat("a", 40))
	b := oid.MustFromHex(strings.Repeat("a", 40))
	c := oid.MustFromHex(strings.Repeat("c", 40))
	require.True(t, a.Is(b))
	require.False(t, a.Is(c))
}
