package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnswerDotAI/ai-jup/core"
)

func TestCatalogResolve(t *testing.T) {
	c := NewCatalog(map[string]core.FunctionInfo{
		"head": {Signature: "head(n: int = 5)", Description: "first rows"},
	})

	d, err := c.Resolve("head")
	require.NoError(t, err)
	assert.Equal(t, "head", d.Name)
	assert.Equal(t, []string{"n"}, d.Params)
	assert.Equal(t, "first rows", d.Description)

	_, err = c.Resolve("tail")
	assert.Equal(t, core.CodeUnknownTool, core.CodeOf(err))
}

func TestCatalogAllPreservesOrder(t *testing.T) {
	c := NewCatalog(map[string]core.FunctionInfo{
		"a": {Signature: "a()"},
		"b": {Signature: "b()"},
	})
	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.All(), 2)
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		want      []string
	}{
		{"simple", "head(n)", []string{"n"}},
		{"annotations and defaults", "load(path: str, limit: int = 100) -> DataFrame", []string{"path", "limit"}},
		{"keyword-only marker", "plot(x, *, kind: str = 'line')", []string{"x", "kind"}},
		{"positional-only marker", "f(a, /, b)", []string{"a", "b"}},
		{"star args", "call(fn, *args, **kwargs)", []string{"fn", "args", "kwargs"}},
		{"nested brackets", "agg(spec: dict[str, int], fill=(0, 0))", []string{"spec", "fill"}},
		{"dict default", "query(sql: str, params: dict[str, int] = {}) -> list", []string{"sql", "params"}},
		{"empty parens", "refresh()", []string{}},
		{"no parens", "just a description", nil},
		{"unbalanced", "broken(a, b", nil},
		{"only markers", "f(*)", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseParams(tc.signature))
		})
	}
}
