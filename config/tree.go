package config

import (
	"fmt"
	"sort"
	"strings"

	fileConfig "github.com/olebedev/config"
	"gopkg.in/yaml.v3"
)

// Tree is an immutable hierarchical configuration tree addressed by dotted paths.
// It is produced by a Parser and is never mutated in place: layering and narrowing
// always return a new Tree.
type Tree struct {
	cfg *fileConfig.Config
}

// NewTree wraps a nested map as a Tree. Nested objects must be map[string]any.
func NewTree(root map[string]any) *Tree {
	if root == nil {
		root = map[string]any{}
	}
	return &Tree{cfg: &fileConfig.Config{Root: root}}
}

// ParseYAML parses a YAML 1.2 document into a Tree. Scalars such as y, no or on
// stay strings, as they do for resources read by the parser.
func ParseYAML(doc string) (*Tree, error) {
	var root any
	if err := yaml.Unmarshal([]byte(doc), &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return fromConfig(&fileConfig.Config{Root: normalize(root)}), nil
}

// ParseJSON parses a JSON document into a Tree.
func ParseJSON(doc string) (*Tree, error) {
	c, err := fileConfig.ParseJson(doc)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return fromConfig(c), nil
}

// MustParseYAML is like ParseYAML but panics on error. Intended for tests and
// package level defaults.
func MustParseYAML(doc string) *Tree {
	t, err := ParseYAML(doc)
	if err != nil {
		panic(err)
	}
	return t
}

func fromConfig(c *fileConfig.Config) *Tree {
	if _, ok := c.Root.(map[string]any); !ok {
		return NewTree(nil)
	}
	return &Tree{cfg: c}
}

// Raw returns the root object of the tree. Callers must not modify it.
func (t *Tree) Raw() map[string]any {
	if t == nil || t.cfg == nil {
		return map[string]any{}
	}
	m, _ := t.cfg.Root.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// Lookup returns the value stored at the dotted path.
func (t *Tree) Lookup(path string) (any, error) {
	c, err := t.config().Get(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrKeyNotFound, path, err)
	}
	return c.Root, nil
}

// Has reports whether the dotted path resolves to a value or object.
func (t *Tree) Has(path string) bool {
	v, err := t.Lookup(path)
	return err == nil && v != nil
}

// SubtreeAt returns the object stored at the dotted path as a new Tree.
// It fails with MissingPrefixError when the path is absent or holds a non-object value.
func (t *Tree) SubtreeAt(path string) (*Tree, error) {
	c, err := t.config().Get(path)
	if err != nil {
		return nil, MissingPrefixError{Prefix: path, Err: err}
	}
	m, ok := c.Root.(map[string]any)
	if !ok {
		return nil, MissingPrefixError{Prefix: path, Err: fmt.Errorf("expected an object, got %T", c.Root)}
	}
	return NewTree(m), nil
}

// WithFallback layers fallback under t. Keys present in t win; objects present
// in both are merged key by key; everything else is filled from fallback.
func (t *Tree) WithFallback(fallback *Tree) *Tree {
	merged, _ := mergeFallback(t.Raw(), fallback.Raw()).(map[string]any)
	return NewTree(merged)
}

// Flatten returns the leaves of the tree as dotted keys in lexicographic order.
// Lists are leaves; empty objects produce no entries.
func (t *Tree) Flatten() Properties {
	flat := make(map[string]any)
	flattenInto("", t.Raw(), flat)

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := newProperties()
	for _, k := range keys {
		p.set(k, flat[k])
	}
	return p
}

// Config exposes the tree for typed access. The returned value must be treated as read only.
func (t *Tree) Config() *fileConfig.Config {
	return t.config()
}

func (t *Tree) config() *fileConfig.Config {
	if t == nil || t.cfg == nil {
		return &fileConfig.Config{Root: map[string]any{}}
	}
	return t.cfg
}

// normalize turns the maps produced by the YAML decoder into map[string]any,
// stringifying non-string keys.
func normalize(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, vv := range tv {
			out[k] = normalize(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, vv := range tv {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, vv := range tv {
			out[i] = normalize(vv)
		}
		return out
	default:
		return v
	}
}

// mergeFallback returns primary layered over fallback. Shared sub-objects are
// not copied; trees are never mutated after construction.
func mergeFallback(primary, fallback any) any {
	pm, ok := primary.(map[string]any)
	if !ok {
		return primary
	}
	fm, ok := fallback.(map[string]any)
	if !ok {
		return primary
	}

	out := make(map[string]any, len(pm)+len(fm))
	for k, v := range fm {
		out[k] = v
	}
	for k, v := range pm {
		if fv, ok := fm[k]; ok {
			out[k] = mergeFallback(v, fv)
			continue
		}
		out[k] = v
	}
	return out
}

func flattenInto(p string, src map[string]any, dst map[string]any) {
	for k, v := range src {
		if len(p) > 0 {
			k = strings.Join([]string{p, k}, ".")
		}
		if sub, ok := v.(map[string]any); ok {
			flattenInto(k, sub, dst)
			continue
		}
		dst[k] = v
	}
}
