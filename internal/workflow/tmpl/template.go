// Package tmpl implements the Workflow Engine's mustache-style template
// interpolation (spec §4.3) with a process-wide, insert-only compiled
// cache keyed by the raw template string: identical templates compile
// once across every execution, no matter how many times they're rendered.
package tmpl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PaesslerAG/jsonpath"
)

// segment is either a literal run of text or a {{ dotted.path }} lookup.
type segment struct {
	literal string
	path    string // empty for a literal segment
}

// Template is a compiled interpolation unit. A template consisting of
// exactly one expression segment (no surrounding literal text) renders as
// the looked-up value's native type via RenderValue; anything else always
// renders as a string via Render.
type Template struct {
	source   string
	segments []segment
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Template)
)

// Compile parses raw and returns its cached Template, compiling only on
// the first call for a given source string (spec's "Template idempotence"
// law: the cache never grows after the first compile of a given source).
func Compile(raw string) (*Template, error) {
	cacheMu.RLock()
	t, ok := cache[raw]
	cacheMu.RUnlock()
	if ok {
		return t, nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if t, ok := cache[raw]; ok {
		return t, nil
	}

	t, err := parse(raw)
	if err != nil {
		return nil, err
	}
	cache[raw] = t
	return t, nil
}

func parse(raw string) (*Template, error) {
	var segs []segment
	rest := raw
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				segs = append(segs, segment{literal: rest})
			}
			break
		}
		if start > 0 {
			segs = append(segs, segment{literal: rest[:start]})
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return nil, fmt.Errorf("tmpl: unterminated expression in %q", raw)
		}
		end += start
		path := strings.TrimSpace(rest[start+2 : end])
		if path == "" {
			return nil, fmt.Errorf("tmpl: empty expression in %q", raw)
		}
		segs = append(segs, segment{path: path})
		rest = rest[end+2:]
	}
	return &Template{source: raw, segments: segs}, nil
}

// lookup resolves a dotted path against data using JSONPath syntax,
// prefixing "$." so callers can write the execution-context convention
// ("input.foo", "steps.bar.output") without the JSONPath root sigil.
func lookup(path string, data map[string]any) (any, error) {
	expr := "$." + path
	v, err := jsonpath.Get(expr, data)
	if err != nil {
		return nil, fmt.Errorf("tmpl: resolve %q: %w", path, err)
	}
	return v, nil
}

// RenderValue interpolates the template against data, preserving the
// looked-up value's native type when the template is a single bare
// expression (e.g. "{{ steps.fetch.output.count }}" yields an int, not its
// string form); any template with surrounding or multiple segments always
// renders as a concatenated string.
func (t *Template) RenderValue(data map[string]any) (any, error) {
	if len(t.segments) == 1 && t.segments[0].path != "" {
		return lookup(t.segments[0].path, data)
	}
	return t.Render(data)
}

// Render always interpolates the template as a string.
func (t *Template) Render(data map[string]any) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.path == "" {
			b.WriteString(seg.literal)
			continue
		}
		v, err := lookup(seg.path, data)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String(), nil
}

// InterpolateConfig walks a step's Config map recursively, rendering every
// string leaf as a template against data and leaving non-string leaves
// untouched, returning a fresh map so the original Config is never
// mutated across repeated executions of the same Workflow.
func InterpolateConfig(config map[string]any, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(config))
	for k, v := range config {
		rendered, err := interpolateValue(v, data)
		if err != nil {
			return nil, fmt.Errorf("tmpl: field %q: %w", k, err)
		}
		out[k] = rendered
	}
	return out, nil
}

func interpolateValue(v any, data map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		t, err := Compile(val)
		if err != nil {
			return nil, err
		}
		return t.RenderValue(data)
	case map[string]any:
		return InterpolateConfig(val, data)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			rendered, err := interpolateValue(elem, data)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

// CacheSize reports the number of distinct compiled templates, used only
// by tests to verify the idempotence law (no growth on repeated compiles).
func CacheSize() int {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return len(cache)
}
