package command_test

import (
	"bufio"
	"strings"
	"testing"

	"github.com/grafana/git-receive-pack/command"
	"github.com/grafana/git-receive-pack/oid"
	"github.com/stretchr/testify/require"
)

const zero40 = "0000000000000000000000000000000000000000"

func hex(c byte) string {
	return strings.Repeat(string(c), 40)
}

func TestClassify(t *testing.T) {
	z := oid.Zero
	a := oid.MustFromHex(hex('a'))
	b := oid.MustFromHex(hex('b'))

	require.Equal(t, command.OpCreate, command.Classify(z, a))
	require.Equal(t, command.OpDelete, command.Classify(a, z))
	require.Equal(t, command.OpUpdate, command.Classify(a, b))
}

func TestParseLine(t *testing.T) {
	line := zero40 + " " + hex('a') + " refs/heads/main"
	u, err := command.ParseLine(line)
	require.NoError(t, err)
	require.Equal(t, command.OpCreate, u.Op)
	require.Equal(t, "refs/heads/main", u.Name)
}

func TestParseLineMalformed(t *testing.T) {
	_, err := command.ParseLine("not-enough-fields")
	require.Error(t, err)
}

func TestParseLineBadRefName(t *testing.T) {
	line := zero40 + " " + hex('a') + " not-a-ref"
	_, err := command.ParseLine(line)
	require.Error(t, err)
}

func TestParseLineUpdateOldEqualsNew(t *testing.T) {
	line := hex('a') + " " + hex('a') + " refs/heads/main"
	_, err := command.ParseLine(line)
	require.Error(t, err)
}

func TestParseFirstLineWithCapabilities(t *testing.T) {
	line := zero40 + " " + hex('a') + " refs/heads/main\x00report-status side-band-64k\n"
	u, caps, err := command.ParseFirstLine(line)
	require.NoError(t, err)
	require.Equal(t, "refs/heads/main", u.Name)
	require.Equal(t, "report-status side-band-64k", caps)
}

func TestParseLinesDuplicateRefName(t *testing.T) {
	lines := [][]byte{
		[]byte(zero40 + " " + hex('a') + " refs/heads/main\x00report-status\n"),
		[]byte(hex('a') + " " + hex('b') + " refs/heads/main"),
	}
	_, _, err := command.ParseLines(lines)
	require.ErrorIs(t, err, command.ErrDuplicateRefName)
}

func TestRoundTrip(t *testing.T) {
	lines := [][]byte{
		[]byte(zero40 + " " + hex('a') + " refs/heads/main\x00report-status\n"),
		[]byte(hex('b') + " " + zero40 + " refs/heads/topic"),
	}
	list, caps, err := command.ParseLines(lines)
	require.NoError(t, err)
	require.Equal(t, "report-status", caps)
	require.Len(t, list, 2)

	for i, u := range list {
		formatted := command.FormatLine(u)
		reparsed, err := command.ParseLine(strings.TrimRight(formatted, "\n"))
		require.NoError(t, err)
		require.Equal(t, u.Op, reparsed.Op)
		require.Equal(t, u.Name, reparsed.Name)
		require.True(t, u.Old.Is(reparsed.Old), "entry %d old oid mismatch", i)
		require.True(t, u.New.Is(reparsed.New), "entry %d new oid mismatch", i)
	}
}

func TestRoundTripSHA256ZeroKeepsWidth(t *testing.T) {
	zero64 := strings.Repeat("0", 64)
	line := strings.Repeat("b", 64) + " " + zero64 + " refs/heads/topic"

	u, err := command.ParseLine(line)
	require.NoError(t, err)
	require.Equal(t, command.OpDelete, u.Op)
	require.Equal(t, line+"\n", command.FormatLine(u))
}

func TestListValidateEmpty(t *testing.T) {
	require.NoError(t, command.List{}.Validate())
}

func TestScanHookStdin(t *testing.T) {
	input := zero40 + " " + hex('a') + " refs/heads/main\n" +
		hex('b') + " " + zero40 + " refs/heads/topic\n"

	list, err := command.ScanHookStdin(bufio.NewScanner(strings.NewReader(input)))
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, command.OpCreate, list[0].Op)
	require.Equal(t, command.OpDelete, list[1].Op)
}
