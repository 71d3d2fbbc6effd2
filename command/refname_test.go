package command_test

import (
	"testing"

	"github.com/grafana/git-receive-pack/command"
	"github.com/stretchr/testify/require"
)

func TestValidateRefName(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		wantErr bool
	}{
		{"valid branch", "refs/heads/main", false},
		{"valid nested", "refs/heads/feature/foo", false},
		{"valid tag", "refs/tags/v1.0.0", false},
		{"empty", "", true},
		{"missing prefix", "heads/main", true},
		{"no category", "refs/main", true},
		{"consecutive dots", "refs/heads/foo..bar", true},
		{"consecutive slashes", "refs/heads//bar", true},
		{"at brace", "refs/heads/foo@{1}", true},
		{"trailing dot", "refs/heads/foo.", true},
		{"trailing slash", "refs/heads/foo/", true},
		{"component starts with dot", "refs/heads/.foo", true},
		{"lock suffix", "refs/heads/foo.lock", true},
		{"bare at component", "refs/heads/@", true},
		{"space", "refs/heads/foo bar", true},
		{"caret", "refs/heads/foo^bar", true},
		{"colon", "refs/heads/foo:bar", true},
		{"question mark", "refs/heads/foo?bar", true},
		{"asterisk", "refs/heads/foo*bar", true},
		{"open bracket", "refs/heads/foo[bar", true},
		{"backslash", "refs/heads/foo\\bar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := command.ValidateRefName(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
