package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `rules:
  - type: image/*
    maxSize: 1048576
  - type: application/pdf
    pubkeys:
      - pk-a
  - type: "*"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rs, 3)
	assert.Equal(t, "image/*", rs[0].Type)
	assert.Equal(t, int64(1048576), rs[0].MaxSize)
	assert.Equal(t, []string{"pk-a"}, rs[1].Pubkeys)
	assert.Equal(t, "*", rs[2].Type)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - maxSize: 5\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "type is required")
}

func TestMatch_FirstMatchWins(t *testing.T) {
	rs := []Rule{
		{Type: "image/*"},
		{Type: "*"},
	}

	got := Match(rs, MatchInput{Type: "image/png"}, false)
	require.NotNil(t, got)
	assert.Equal(t, "image/*", got.Type)

	got = Match(rs, MatchInput{Type: "text/plain"}, false)
	require.NotNil(t, got)
	assert.Equal(t, "*", got.Type)
}

func TestMatch(t *testing.T) {
	rs := []Rule{
		{Type: "image/*", MaxSize: 100},
		{Type: "application/pdf", Pubkeys: []string{"pk-a"}},
		{Type: "video/mp4"},
	}

	tests := []struct {
		name          string
		in            MatchInput
		requirePubkey bool
		wantType      string
		wantNone      bool
	}{
		{
			name:     "exact type",
			in:       MatchInput{Type: "video/mp4"},
			wantType: "video/mp4",
		},
		{
			name:     "wildcard prefix",
			in:       MatchInput{Type: "image/webp", Size: 50},
			wantType: "image/*",
		},
		{
			name:     "size over limit skips rule",
			in:       MatchInput{Type: "image/webp", Size: 200},
			wantNone: true,
		},
		{
			name:     "undeclared size passes size bound",
			in:       MatchInput{Type: "image/webp"},
			wantType: "image/*",
		},
		{
			name:     "restricted rule with listed pubkey",
			in:       MatchInput{Type: "application/pdf", Pubkey: "pk-a"},
			wantType: "application/pdf",
		},
		{
			name:     "restricted rule rejects unlisted pubkey",
			in:       MatchInput{Type: "application/pdf", Pubkey: "pk-b"},
			wantNone: true,
		},
		{
			name:          "require pubkey in rule skips unrestricted rules",
			in:            MatchInput{Type: "video/mp4", Pubkey: "pk-a"},
			requirePubkey: true,
			wantNone:      true,
		},
		{
			name:          "require pubkey in rule matches listed pubkey",
			in:            MatchInput{Type: "application/pdf", Pubkey: "pk-a"},
			requirePubkey: true,
			wantType:      "application/pdf",
		},
		{
			name:          "require pubkey in rule with no identity",
			in:            MatchInput{Type: "application/pdf"},
			requirePubkey: true,
			wantNone:      true,
		},
		{
			name:     "unaccepted type",
			in:       MatchInput{Type: "text/html"},
			wantNone: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Match(rs, tt.in, tt.requirePubkey)
			if tt.wantNone {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantType, got.Type)
		})
	}
}
