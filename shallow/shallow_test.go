package shallow_test

import (
	"strings"
	"testing"

	"github.com/grafana/git-receive-pack/oid"
	"github.com/grafana/git-receive-pack/pushopts"
	"github.com/grafana/git-receive-pack/shallow"
	"github.com/stretchr/testify/require"
)

func h(c byte) oid.OID {
	return oid.MustFromHex(strings.Repeat(string(c), 40))
}

func TestFromOptionsDedupes(t *testing.T) {
	opts := pushopts.Options{
		ShallowOIDs: []oid.OID{h('a'), h('b'), h('a')},
	}
	plan, err := shallow.FromOptions(opts)
	require.NoError(t, err)
	require.Len(t, plan.ToAdd, 2)
	require.Empty(t, plan.ToRemove)
}

func TestFromOptionsOverlapIsError(t *testing.T) {
	opts := pushopts.Options{
		ShallowOIDs:   []oid.OID{h('a')},
		UnshallowOIDs: []oid.OID{h('a')},
	}
	_, err := shallow.FromOptions(opts)
	require.Error(t, err)
	var overlap *shallow.ErrOverlap
	require.ErrorAs(t, err, &overlap)
}

func TestFromOptionsIsPure(t *testing.T) {
	opts := pushopts.Options{
		ShallowOIDs:   []oid.OID{h('a'), h('b')},
		UnshallowOIDs: []oid.OID{h('c')},
	}
	p1, err1 := shallow.FromOptions(opts)
	p2, err2 := shallow.FromOptions(opts)
	require.Equal(t, err1, err2)
	require.Equal(t, p1, p2)
}

func TestFromOptionsEmpty(t *testing.T) {
	plan, err := shallow.FromOptions(pushopts.Options{})
	require.NoError(t, err)
	require.Empty(t, plan.ToAdd)
	require.Empty(t, plan.ToRemove)
}
