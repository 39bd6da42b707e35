package lore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecoratorsRoundTrip(t *testing.T) {
	parsed := ParseDecorators("@@depth 2\n@@role assistant\nBody text")

	assert.Equal(t, Decorators{"depth": 2, "role": "assistant"}, parsed.Decorators)
	assert.Empty(t, parsed.FallbackDecorators)
	assert.Equal(t, "Body text", parsed.Content)
}

func TestParseDecoratorsEmpty(t *testing.T) {
	parsed := ParseDecorators("")
	assert.Empty(t, parsed.Decorators)
	assert.Empty(t, parsed.FallbackDecorators)
	assert.Equal(t, "", parsed.Content)
}

func TestParseDecoratorsFallbackIsolation(t *testing.T) {
	parsed := ParseDecorators("@@constant\n@@@sticky 3\n@@depth 1\nBody")

	assert.Contains(t, parsed.FallbackDecorators, "sticky")
	assert.NotContains(t, parsed.Decorators, "sticky")
	assert.Contains(t, parsed.Decorators, "constant")
	assert.Contains(t, parsed.Decorators, "depth")
}

func TestParseDecoratorsBlankLinesSkipped(t *testing.T) {
	parsed := ParseDecorators("\n@@depth 3\n\n@@role user\nBody line 1\nBody line 2")

	assert.Equal(t, 3, parsed.Decorators["depth"])
	assert.Equal(t, "user", parsed.Decorators["role"])
	assert.Equal(t, "Body line 1\nBody line 2", parsed.Content)
}

func TestParseDecoratorsFirstNonDecoratorTerminates(t *testing.T) {
	parsed := ParseDecorators("@@depth 1\nThe text\n@@role user\nmore")

	assert.Equal(t, Decorators{"depth": 1}, parsed.Decorators)
	assert.Equal(t, "The text\n@@role user\nmore", parsed.Content)
}

func TestParseDecoratorsAllDecoratorContent(t *testing.T) {
	parsed := ParseDecorators("@@constant\n@@@activate")
	assert.Equal(t, "", parsed.Content)
}

func TestDecoratorTyping(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
		want    interface{}
	}{
		{"flag ignores value", "@@constant whatever\nx", "constant", true},
		{"numeric", "@@scan_depth 12\nx", "scan_depth", 12},
		{"numeric garbage is zero", "@@depth abc\nx", "depth", 0},
		{"list splits and trims", "@@additional_keys a, b ,,c\nx", "additional_keys", []string{"a", "b", "c"}},
		{"role valid", "@@role SYSTEM\nx", "role", "system"},
		{"role invalid is nil", "@@role narrator\nx", "role", nil},
		{"position alias", "@@position an_top\nx", "position", string(PosTopOfAN)},
		{"position unknown defaults", "@@position nowhere\nx", "position", string(PosAfterCharDefs)},
		{"other stores trimmed string", "@@custom  hello there \nx", "custom", "hello there"},
		{"name lowercased", "@@Depth 7\nx", "depth", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := ParseDecorators(tt.content)
			got, ok := parsed.Decorators[tt.key]
			require.True(t, ok, "decorator %q missing", tt.key)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyDecorators(t *testing.T) {
	base := Entry{
		Keys:        []string{"dragon"},
		ExcludeKeys: []string{"old"},
		Position:    PosAfterCharDefs,
		Role:        RoleSystem,
	}

	t.Run("standard set", func(t *testing.T) {
		parsed := ParseDecorators(
			"@@depth 9\n@@scan_depth 3\n@@role assistant\n@@position at_depth\n" +
				"@@constant\n@@additional_keys wyrm, dragon\n@@exclude_keys new1,new2\nBody")
		got := parsed.Apply(base, false)

		assert.Equal(t, 9, got.Depth)
		require.NotNil(t, got.ScanDepth)
		assert.Equal(t, 3, *got.ScanDepth)
		assert.Equal(t, RoleAssistant, got.Role)
		assert.Equal(t, PosAtDepth, got.Position)
		assert.True(t, got.Constant)
		assert.Equal(t, []string{"dragon", "wyrm"}, got.Keys)
		assert.Equal(t, []string{"new1", "new2"}, got.ExcludeKeys)
		// base untouched
		assert.Equal(t, []string{"dragon"}, base.Keys)
		assert.False(t, base.Constant)
	})

	t.Run("activate clears dont_activate", func(t *testing.T) {
		e := base
		e.DontActivate = true
		parsed := ParseDecorators("@@activate\nBody")
		assert.False(t, parsed.Apply(e, false).DontActivate)
	})

	t.Run("fallback set only applies when asked", func(t *testing.T) {
		parsed := ParseDecorators("@@@depth 5\nBody")
		assert.Equal(t, 0, parsed.Apply(Entry{}, false).Depth)
		assert.Equal(t, 5, parsed.Apply(Entry{}, true).Depth)
	})

	t.Run("fallback sticky applies numerically", func(t *testing.T) {
		parsed := ParseDecorators("@@@sticky 3\nBody")
		assert.Equal(t, 3, parsed.Apply(Entry{}, true).Sticky)
	})

	t.Run("case sensitivity flag", func(t *testing.T) {
		parsed := ParseDecorators("@@case_sensitive\n@@use_regex\nBody")
		got := parsed.Apply(Entry{}, false)
		require.NotNil(t, got.CaseSensitive)
		assert.True(t, *got.CaseSensitive)
		assert.True(t, got.UseRegex)
	})
}
