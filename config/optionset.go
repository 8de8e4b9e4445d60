package config

import (
	"io/fs"
	"strings"
)

const (
	// SyntaxAuto detects the syntax from the resource extension, defaulting to YAML.
	SyntaxAuto Syntax = ""
	// SyntaxYAML forces YAML parsing.
	SyntaxYAML Syntax = "yaml"
	// SyntaxJSON forces JSON parsing.
	SyntaxJSON Syntax = "json"
)

const (
	// NarrowWithFallback narrows the view to the prefix and keeps the unprefixed
	// root as a fallback, so keys missing under the prefix still resolve.
	NarrowWithFallback PrefixMode = iota
	// NarrowOnly narrows the view to the prefix; root keys outside of it are dropped.
	NarrowOnly
)

type (
	// Syntax names the format the parser should assume for a resource.
	Syntax string

	// PrefixMode controls how a prefix is applied to the loaded tree.
	PrefixMode int

	// ParseOptions are forwarded untouched to the parser.
	ParseOptions struct {
		// Syntax forces a format instead of detecting it from the extension.
		Syntax Syntax
		// AllowMissing makes a missing resource load as an empty tree.
		AllowMissing bool
		// OriginDescription labels the source in parser errors.
		OriginDescription string
	}

	// ResolveOptions are forwarded untouched to the parser.
	ResolveOptions struct {
		// UseSystemEnvironment lets ${...} substitutions fall back to environment variables.
		UseSystemEnvironment bool
		// AllowUnresolved leaves unresolvable substitutions in place instead of failing.
		AllowUnresolved bool
	}

	// OptionSet is the immutable record of which loading inputs an integrator supplied.
	// Each field is independently present or absent. Build it with NewOptionSet.
	OptionSet struct {
		present Fields

		resourceName   string
		loaderContext  fs.FS
		presetTree     *Tree
		parseOptions   ParseOptions
		resolveOptions ResolveOptions

		prefix     string
		hasPrefix  bool
		prefixMode PrefixMode
	}

	// SetOption configures an OptionSet using the functional options pattern.
	// Options are order independent.
	SetOption func(*optionSetBuilder)

	optionSetBuilder struct {
		set  OptionSet
		errs []error
	}
)

// NewOptionSet accumulates the given options into an immutable OptionSet.
// A collaborator supplied as nil or empty is reported as an InvalidArgumentError.
//
// Example:
//
//	set, err := NewOptionSet(
//	    WithResourceName("application"),
//	    WithLoaderContext(os.DirFS("/etc/myapp")),
//	    WithPrefix("myapp"),
//	)
func NewOptionSet(opts ...SetOption) (OptionSet, error) {
	b := &optionSetBuilder{}
	for _, o := range opts {
		o(b)
	}
	if len(b.errs) > 0 {
		return OptionSet{}, b.errs[0]
	}
	return b.set, nil
}

// WithResourceName sets the basename of the resource the parser should load.
func WithResourceName(name string) SetOption {
	return func(b *optionSetBuilder) {
		if strings.TrimSpace(name) == "" {
			b.fail(InvalidArgumentError{Argument: "resourceName", Reason: "must not be empty"})
			return
		}
		b.set.resourceName = name
		b.set.present |= FieldResourceName
	}
}

// WithLoaderContext sets the filesystem resources are looked up in.
func WithLoaderContext(fsys fs.FS) SetOption {
	return func(b *optionSetBuilder) {
		if fsys == nil {
			b.fail(InvalidArgumentError{Argument: "loaderContext", Reason: "must not be nil"})
			return
		}
		b.set.loaderContext = fsys
		b.set.present |= FieldLoaderContext
	}
}

// WithPresetConfig sets a pre-built tree the parser should use instead of reading a resource.
func WithPresetConfig(t *Tree) SetOption {
	return func(b *optionSetBuilder) {
		if t == nil {
			b.fail(InvalidArgumentError{Argument: "presetConfig", Reason: "must not be nil"})
			return
		}
		b.set.presetTree = t
		b.set.present |= FieldPresetTree
	}
}

// WithParseOptions sets the parse options forwarded to the parser.
func WithParseOptions(o ParseOptions) SetOption {
	return func(b *optionSetBuilder) {
		b.set.parseOptions = o
		b.set.present |= FieldParseOptions
	}
}

// WithResolveOptions sets the resolve options forwarded to the parser.
func WithResolveOptions(o ResolveOptions) SetOption {
	return func(b *optionSetBuilder) {
		b.set.resolveOptions = o
		b.set.present |= FieldResolveOptions
	}
}

// WithPrefix narrows the resolved view to the sub-tree at the given dotted path.
func WithPrefix(prefix string) SetOption {
	return func(b *optionSetBuilder) {
		prefix = strings.Trim(prefix, ".")
		if prefix == "" {
			b.fail(InvalidArgumentError{Argument: "prefix", Reason: "must not be empty"})
			return
		}
		b.set.prefix = prefix
		b.set.hasPrefix = true
	}
}

// WithPrefixMode selects whether the unprefixed root stays reachable as a fallback.
// It has no effect unless a prefix is set.
func WithPrefixMode(m PrefixMode) SetOption {
	return func(b *optionSetBuilder) {
		b.set.prefixMode = m
	}
}

// Present returns the set of loading fields that were supplied.
func (s OptionSet) Present() Fields {
	return s.present
}

// ResourceName returns the resource basename and whether it was supplied.
func (s OptionSet) ResourceName() (string, bool) {
	return s.resourceName, s.present.Has(FieldResourceName)
}

// LoaderContext returns the loader filesystem and whether it was supplied.
func (s OptionSet) LoaderContext() (fs.FS, bool) {
	return s.loaderContext, s.present.Has(FieldLoaderContext)
}

// PresetTree returns the preset tree and whether it was supplied.
func (s OptionSet) PresetTree() (*Tree, bool) {
	return s.presetTree, s.present.Has(FieldPresetTree)
}

// ParseOptions returns the parse options and whether they were supplied.
func (s OptionSet) ParseOptions() (ParseOptions, bool) {
	return s.parseOptions, s.present.Has(FieldParseOptions)
}

// ResolveOptions returns the resolve options and whether they were supplied.
func (s OptionSet) ResolveOptions() (ResolveOptions, bool) {
	return s.resolveOptions, s.present.Has(FieldResolveOptions)
}

// Prefix returns the prefix and whether it was supplied.
func (s OptionSet) Prefix() (string, bool) {
	return s.prefix, s.hasPrefix
}

// PrefixMode returns how the prefix is applied.
func (s OptionSet) PrefixMode() PrefixMode {
	return s.prefixMode
}

func (b *optionSetBuilder) fail(err error) {
	b.errs = append(b.errs, err)
}

func (m PrefixMode) String() string {
	switch m {
	case NarrowWithFallback:
		return "narrow_with_fallback"
	case NarrowOnly:
		return "narrow_only"
	default:
		return "unknown"
	}
}
