package lore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKeyList(t *testing.T) {
	t.Run("nil input", func(t *testing.T) {
		assert.Empty(t, ParseKeyList(nil))
	})

	t.Run("list input preserves order and drops empties", func(t *testing.T) {
		got := ParseKeyList([]interface{}{" dragon ", "", "knight", nil, 7})
		assert.Equal(t, []string{"dragon", "knight", "7"}, got)
	})

	t.Run("string list input", func(t *testing.T) {
		got := ParseKeyList([]string{"a", "  ", "b"})
		assert.Equal(t, []string{"a", "b"}, got)
	})

	t.Run("plain comma split", func(t *testing.T) {
		got := ParseKeyList("dragon, knight ,castle")
		assert.Equal(t, []string{"dragon", "knight", "castle"}, got)
	})
}

func TestSplitKeysRegexAware(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "comma inside regex literal is not a split point",
			input: "a, /b,c/i, d",
			want:  []string{"a", "/b,c/i", "d"},
		},
		{
			name:  "escaped slash does not close the regex",
			input: `/a\/b,c/, next`,
			want:  []string{`/a\/b,c/`, "next"},
		},
		{
			name:  "slash mid-token does not start a regex",
			input: "km/h, mph",
			want:  []string{"km/h", "mph"},
		},
		{
			name:  "flags end at comma",
			input: "/dragon/gi, rider",
			want:  []string{"/dragon/gi", "rider"},
		},
		{
			name:  "empty tokens dropped",
			input: ",, a ,,",
			want:  []string{"a"},
		},
		{
			name:  "blank input",
			input: "   ",
			want:  nil,
		},
		{
			name:  "unterminated regex keeps the rest as one token",
			input: "/a,b",
			want:  []string{"/a,b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitKeys(tt.input))
		})
	}
}

func TestSplitKeysIdempotent(t *testing.T) {
	inputs := []string{
		"a, b, c",
		"a, /b,c/i, d",
		"/x\\/y/m, z",
	}
	for _, in := range inputs {
		first := SplitKeys(in)
		second := SplitKeys(strings.Join(first, ","))
		assert.Equal(t, first, second, "re-splitting %q changed the tokens", in)
	}
}
