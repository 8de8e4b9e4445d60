package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wixia/confsource/config"
)

// substitutionPattern matches ${path} and the optional form ${?path}.
var substitutionPattern = regexp.MustCompile(`\$\{(\?)?\s*([^}\s]+)\s*\}`)

// resolver replaces ${...} references in a merged tree. A reference is looked up
// in the tree first and then, when allowed, in the environment. A value made of a
// single reference keeps the referenced value's type; references embedded in text
// are stringified.
type resolver struct {
	root      map[string]any
	opts      config.ResolveOptions
	lookupEnv func(string) (string, bool)

	active map[string]bool
}

func newResolver(root map[string]any, opts config.ResolveOptions, lookupEnv func(string) (string, bool)) *resolver {
	return &resolver{
		root:      root,
		opts:      opts,
		lookupEnv: lookupEnv,
		active:    make(map[string]bool),
	}
}

// resolve returns a new tree with every substitution replaced.
func (r *resolver) resolve() (map[string]any, error) {
	return r.resolveMap("", r.root)
}

func (r *resolver) resolveMap(prefix string, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		rv, keep, err := r.resolveAt(joinPath(prefix, k), v)
		if err != nil {
			return nil, err
		}
		if keep {
			out[k] = rv
		}
	}
	return out, nil
}

// resolveAt resolves the value stored at path. keep is false when an optional
// substitution made the value disappear.
func (r *resolver) resolveAt(path string, v any) (any, bool, error) {
	switch tv := v.(type) {
	case map[string]any:
		m, err := r.resolveMap(path, tv)
		return m, err == nil, err
	case []any:
		out := make([]any, 0, len(tv))
		for i, item := range tv {
			rv, keep, err := r.resolveAt(joinPath(path, strconv.Itoa(i)), item)
			if err != nil {
				return nil, false, err
			}
			if keep {
				out = append(out, rv)
			}
		}
		return out, true, nil
	case string:
		return r.resolveString(path, tv)
	default:
		return v, true, nil
	}
}

func (r *resolver) resolveString(path, s string) (any, bool, error) {
	matches := substitutionPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, true, nil
	}

	if r.active[path] {
		return nil, false, CyclicSubstitutionError{Path: path}
	}
	r.active[path] = true
	defer delete(r.active, path)

	if m := matches[0]; len(matches) == 1 && m[0] == 0 && m[1] == len(s) {
		optional, ref := m[2] >= 0, s[m[4]:m[5]]
		v, found, err := r.lookup(ref)
		switch {
		case err != nil:
			return nil, false, err
		case found:
			return v, true, nil
		case optional:
			return nil, false, nil
		case r.opts.AllowUnresolved:
			return s, true, nil
		}
		return nil, false, UnresolvedSubstitutionError{Path: path, Reference: ref}
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(s[last:m[0]])
		last = m[1]

		optional, ref := m[2] >= 0, s[m[4]:m[5]]
		v, found, err := r.lookup(ref)
		switch {
		case err != nil:
			return nil, false, err
		case found:
			b.WriteString(stringify(v))
		case optional:
		case r.opts.AllowUnresolved:
			b.WriteString(s[m[0]:m[1]])
		default:
			return nil, false, UnresolvedSubstitutionError{Path: path, Reference: ref}
		}
	}
	b.WriteString(s[last:])
	return b.String(), true, nil
}

func (r *resolver) lookup(ref string) (any, bool, error) {
	if v, ok := getPath(r.root, ref); ok {
		rv, keep, err := r.resolveAt(ref, v)
		if err != nil {
			return nil, false, err
		}
		if keep {
			return rv, true, nil
		}
	}
	if r.opts.UseSystemEnvironment && r.lookupEnv != nil {
		if ev, ok := r.lookupEnv(ref); ok {
			return ev, true, nil
		}
	}
	return nil, false, nil
}

func getPath(root map[string]any, path string) (any, bool) {
	var cur any = root
	for _, part := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func stringify(v any) string {
	switch tv := v.(type) {
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
