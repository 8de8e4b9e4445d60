package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/orderedmap"
)

// Properties is a flat, ordered mapping of dotted keys to leaf values. It is the
// shape handed to binding code and is refreshed on every Source query.
type Properties struct {
	m *orderedmap.OrderedMap
}

func newProperties() Properties {
	return Properties{m: orderedmap.New()}
}

func (p Properties) set(key string, v any) {
	p.m.Set(key, v)
}

// Get returns the value stored under the dotted key.
func (p Properties) Get(key string) (any, bool) {
	if p.m == nil {
		return nil, false
	}
	return p.m.Get(key)
}

// GetString returns the stringified value stored under the dotted key.
// Lists are joined with commas.
func (p Properties) GetString(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	return stringify(v), true
}

// Keys returns the dotted keys in order.
func (p Properties) Keys() []string {
	if p.m == nil {
		return nil
	}
	return p.m.Keys()
}

// Len returns the number of entries.
func (p Properties) Len() int {
	return len(p.Keys())
}

// Map returns an unordered copy of the entries.
func (p Properties) Map() map[string]any {
	out := make(map[string]any, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.m.Get(k)
		out[k] = v
	}
	return out
}

// StringMap returns the entries with every value stringified.
func (p Properties) StringMap() map[string]string {
	out := make(map[string]string, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.m.Get(k)
		out[k] = stringify(v)
	}
	return out
}

// Equal reports whether both mappings hold the same keys, in the same order, with
// deeply equal values. Values of different types are never equal, so 1 and "1" differ.
func (p Properties) Equal(o Properties) bool {
	pk, other := p.Keys(), o.Keys()
	if len(pk) != len(other) {
		return false
	}
	for i, k := range pk {
		if other[i] != k {
			return false
		}
		a, _ := p.Get(k)
		b, _ := o.Get(k)
		if !reflect.DeepEqual(a, b) {
			return false
		}
	}
	return true
}

// MarshalJSON renders the entries as a JSON object preserving key order.
func (p Properties) MarshalJSON() ([]byte, error) {
	if p.m == nil {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

func stringify(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []any:
		parts := make([]string, len(tv))
		for i, vv := range tv {
			parts[i] = stringify(vv)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", tv)
	}
}
