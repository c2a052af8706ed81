package tmpl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderInterpolatesDottedPath(t *testing.T) {
	data := map[string]any{
		"input": map[string]any{"name": "world"},
	}
	tpl, err := Compile("hello {{ input.name }}!")
	require.NoError(t, err)
	out, err := tpl.Render(data)
	require.NoError(t, err)
	require.Equal(t, "hello world!", out)
}

func TestRenderValuePreservesNativeTypeForBareExpression(t *testing.T) {
	data := map[string]any{
		"steps": map[string]any{
			"fetch": map[string]any{"output": map[string]any{"count": 42}},
		},
	}
	tpl, err := Compile("{{ steps.fetch.output.count }}")
	require.NoError(t, err)
	v, err := tpl.RenderValue(data)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCompileIsIdempotentAndCacheDoesNotGrow(t *testing.T) {
	before := CacheSize()
	_, err := Compile("static literal with no expression")
	require.NoError(t, err)
	afterFirst := CacheSize()
	require.Equal(t, before+1, afterFirst)

	for i := 0; i < 5; i++ {
		_, err := Compile("static literal with no expression")
		require.NoError(t, err)
	}
	require.Equal(t, afterFirst, CacheSize(), "recompiling the same source must not grow the cache")
}

func TestInterpolateConfigWalksNestedStructuresWithoutMutatingInput(t *testing.T) {
	data := map[string]any{"input": map[string]any{"id": "abc123"}}
	original := map[string]any{
		"query": "id={{ input.id }}",
		"nested": map[string]any{
			"list": []any{"{{ input.id }}", "literal"},
		},
		"untouched": 7,
	}

	out, err := InterpolateConfig(original, data)
	require.NoError(t, err)
	require.Equal(t, "id=abc123", out["query"])
	nested := out["nested"].(map[string]any)
	list := nested["list"].([]any)
	require.Equal(t, "abc123", list[0])
	require.Equal(t, "literal", list[1])
	require.Equal(t, 7, out["untouched"])

	require.Equal(t, "id={{ input.id }}", original["query"], "interpolation must not mutate the source config")
}

func TestCompileRejectsUnterminatedExpression(t *testing.T) {
	_, err := Compile("broken {{ input.id")
	require.Error(t, err)
}
