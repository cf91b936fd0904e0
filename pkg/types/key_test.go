package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"Simple", "a/b.json", "a/b.json", false},
		{"Leading and trailing slash", "/a/b/", "a/b", false},
		{"Empty", "", "", true},
		{"Only slashes", "///", "", true},
		{"Double slash", "a//b", "", true},
		{"Dot segment", "a/./b", "", true},
		{"DotDot segment", "../etc/passwd", "", true},
		// "e" + U+0301 (组合重音) 应归一化为 U+00E9
		{"NFC normalization", "cafe\u0301.json", "caf\u00e9.json", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanPrefix_AllowsRoot(t *testing.T) {
	p, err := CleanPrefix("/")
	require.NoError(t, err)
	assert.Equal(t, "", p)
	assert.Nil(t, SplitKey(p))
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "b", JoinKey("", "b"))
	assert.Equal(t, "a/b", JoinKey("a", "b"))
}
