package config

import (
	"context"
	"io/fs"
)

type (
	// Parser is the hierarchical configuration parser a Loader forwards to.
	// Implementations read and merge sources, apply substitutions and return
	// a resolved tree. A nil field in the request means the input was not part
	// of the selected strategy and the parser must apply its own default.
	Parser interface {
		Load(ctx context.Context, req LoadRequest) (*Tree, error)
	}

	// ParserFunc adapts a function to the Parser interface.
	ParserFunc func(ctx context.Context, req LoadRequest) (*Tree, error)

	// LoadRequest carries exactly the inputs of one strategy.
	LoadRequest struct {
		Strategy Strategy

		ResourceName   *string
		LoaderContext  fs.FS
		PresetTree     *Tree
		ParseOptions   *ParseOptions
		ResolveOptions *ResolveOptions
	}

	// Loader is a strategy bound to its captured inputs and a parser.
	// It is stateless and safe to reuse across reloads; it never caches.
	Loader struct {
		strategy Strategy
		req      LoadRequest
		parser   Parser
	}
)

// Load calls f(ctx, req).
func (f ParserFunc) Load(ctx context.Context, req LoadRequest) (*Tree, error) {
	return f(ctx, req)
}

// NewLoader selects the strategy for the option set and binds it to the parser.
func NewLoader(set OptionSet, p Parser) (*Loader, error) {
	if p == nil {
		return nil, InvalidArgumentError{Argument: "parser", Reason: "must not be nil"}
	}
	s, err := Select(set)
	if err != nil {
		return nil, err
	}
	return &Loader{
		strategy: s,
		req:      forward(s, set),
		parser:   p,
	}, nil
}

// Strategy returns the strategy this loader was bound to.
func (l *Loader) Strategy() Strategy {
	return l.strategy
}

// Request returns a copy of the inputs forwarded on every Load.
func (l *Loader) Request() LoadRequest {
	return l.req
}

// Load invokes the parser with the captured inputs.
func (l *Loader) Load(ctx context.Context) (*Tree, error) {
	t, err := l.parser.Load(ctx, l.req)
	if err != nil {
		return nil, ExternalLoadError{Strategy: l.strategy, Err: err}
	}
	if t == nil {
		t = NewTree(nil)
	}
	return t, nil
}

// forward copies into a request only the inputs the strategy declares.
func forward(s Strategy, set OptionSet) LoadRequest {
	f := s.Fields()
	req := LoadRequest{Strategy: s}

	if f.Has(FieldResourceName) {
		name := set.resourceName
		req.ResourceName = &name
	}
	if f.Has(FieldLoaderContext) {
		req.LoaderContext = set.loaderContext
	}
	if f.Has(FieldPresetTree) {
		req.PresetTree = set.presetTree
	}
	if f.Has(FieldParseOptions) {
		po := set.parseOptions
		req.ParseOptions = &po
	}
	if f.Has(FieldResolveOptions) {
		ro := set.resolveOptions
		req.ResolveOptions = &ro
	}
	return req
}

// Fields returns the mask of inputs carried by the request.
func (r LoadRequest) Fields() Fields {
	var f Fields
	if r.ResourceName != nil {
		f |= FieldResourceName
	}
	if r.LoaderContext != nil {
		f |= FieldLoaderContext
	}
	if r.PresetTree != nil {
		f |= FieldPresetTree
	}
	if r.ParseOptions != nil {
		f |= FieldParseOptions
	}
	if r.ResolveOptions != nil {
		f |= FieldResolveOptions
	}
	return f
}
