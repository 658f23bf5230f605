package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare object", `{"action":"hold"}`, `{"action":"hold"}`, true},
		{"fenced with tag", "analysis...\n```json\n[{\"action\":\"wait\"}]\n```\nbye", `[{"action":"wait"}]`, true},
		{"object before nested array", `decision: {"a":[1,2]} end`, `{"a":[1,2]}`, true},
		{"braces in strings", `x {"reasoning":"use {care}"} y`, `{"reasoning":"use {care}"}`, true},
		{"skips invalid candidate", `[oops] {"ok":true}`, `{"ok":true}`, true},
		{"nothing", "no json here", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractJSONOffset(t *testing.T) {
	raw := `  note {"a":1}`
	got, off, ok := ExtractJSONWithOffset(raw)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, got)
	assert.Equal(t, `{"a":1}`, raw[off:off+len(got)])
}
