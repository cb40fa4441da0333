package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	doc := `{"a": {"b": [10, 20], "c": "x"}, "list": [{"v": 1}, {"v": 2}], "n": 7}`

	tests := []struct {
		name string
		path string
		want string
	}{
		{"nested array index", "a.b.0", `10`},
		{"second index", "a.b.1", `20`},
		{"missing key keeps current", "a.x", `{"b":[10,20],"c":"x"}`},
		{"out of range keeps array", "a.b.5", `[10,20]`},
		{"non numeric index keeps array", "a.b.first", `[10,20]`},
		{"negative index keeps array", "a.b.-1", `[10,20]`},
		{"scalar ignores rest", "n.deeper.still", `7`},
		{"skip then continue", "a.missing.c", `"x"`},
		{"array of objects", "list.1.v", `2`},
		{"empty path is root", "", doc},
		{"empty segment skipped", "a..c", `"x"`},
	}

	root := mustParse(t, doc)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(root, SplitPath(tt.path))
			assert.JSONEq(t, tt.want, got.String())
		})
	}
}

func TestResolve_DuplicateKeysLastWins(t *testing.T) {
	root := mustParse(t, `{"v": 1, "o": {"k": "a"}, "v": 2}`)

	assert.Equal(t, `2`, Resolve(root, SplitPath("v")).String())

	text, err := CanonicalJSON(root)
	require.NoError(t, err)
	assert.Equal(t, `{"o":{"k":"a"},"v":2}`, text)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{""}, SplitPath(""))
	assert.Equal(t, []string{"a", "b", "0"}, SplitPath("a.b.0"))
	assert.Equal(t, []string{"a", "", "b"}, SplitPath("a..b"))
}
