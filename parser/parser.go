// Package parser is the default hierarchical configuration parser behind a
// config.Source. It reads YAML or JSON resources from a loader context (an fs.FS),
// layers the application resource over a reference resource, applies forced
// environment overrides and resolves ${...} substitutions.
//
// Layers, from lowest to highest precedence:
//
//  1. reference resource (optional)
//  2. root: preset tree, named resource, out-of-band root (CONFIG_RESOURCE,
//     CONFIG_FILE, CONFIG_URL) or the application resource (optional)
//  3. CONFIG_FORCE_* environment variables, when enabled
package parser

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	koanfenv "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wixia/confsource/config"
	"github.com/wixia/confsource/env"
)

const (
	// DefaultApplicationName is the basename of the root resource read when nothing else is requested.
	DefaultApplicationName = "application"
	// DefaultReferenceName is the basename of the lowest, always optional, layer.
	DefaultReferenceName = "reference"

	keyDelim = "."
)

var resourceExtensions = []string{".json", ".yml", ".yaml"}

type (
	// Parser loads configuration trees. It holds no state between loads and is
	// safe for concurrent use.
	Parser struct {
		loaderContext fs.FS
		application   string
		reference     string

		root         func() (env.RootLocation, error)
		envOverrides func() bool
		lookupEnv    func(string) (string, bool)

		client *http.Client
		logger hclog.Logger
	}

	// Option configures a Parser.
	Option func(*Parser)
)

// New creates a Parser. By default resources are read from os.DirFS(env.ConfDir())
// and the out-of-band switches are read from the process environment.
func New(opts ...Option) *Parser {
	p := &Parser{
		loaderContext: nil,
		application:   DefaultApplicationName,
		reference:     DefaultReferenceName,
		root:          env.Root,
		envOverrides:  env.OverrideWithEnvVars,
		lookupEnv:     os.LookupEnv,
		client:        cleanhttp.DefaultClient(),
		logger:        hclog.NewNullLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// WithDefaultLoaderContext sets the filesystem used when a load request carries none.
func WithDefaultLoaderContext(fsys fs.FS) Option {
	return func(p *Parser) {
		p.loaderContext = fsys
	}
}

// WithApplicationName changes the basename of the default root resource.
func WithApplicationName(name string) Option {
	return func(p *Parser) {
		p.application = name
	}
}

// WithReferenceName changes the basename of the reference resource.
func WithReferenceName(name string) Option {
	return func(p *Parser) {
		p.reference = name
	}
}

// WithHTTPClient sets the client used to fetch URL roots.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Parser) {
		p.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(p *Parser) {
		p.logger = l.Named("parser")
	}
}

// WithRoot replaces the out-of-band root switch, which otherwise comes from env.Root.
func WithRoot(fn func() (env.RootLocation, error)) Option {
	return func(p *Parser) {
		p.root = fn
	}
}

// WithEnvOverrides replaces the CONFIG_FORCE_* toggle, which otherwise comes from env.OverrideWithEnvVars.
func WithEnvOverrides(fn func() bool) Option {
	return func(p *Parser) {
		p.envOverrides = fn
	}
}

// WithLookupEnv replaces os.LookupEnv for ${...} resolution.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(p *Parser) {
		p.lookupEnv = fn
	}
}

// Load reads, merges and resolves a tree for the request. Inputs missing from the
// request fall back to the parser defaults: the default loader context, default
// parse options (auto syntax, missing resource is an error) and default resolve
// options (environment allowed, unresolved is an error).
//
// The out-of-band root only replaces the application resource. When the request
// names a resource or carries a preset tree, the request wins and the switch is ignored.
func (p *Parser) Load(ctx context.Context, req config.LoadRequest) (*config.Tree, error) {
	fsys := p.fsFor(req)
	po := config.ParseOptions{}
	if req.ParseOptions != nil {
		po = *req.ParseOptions
	}
	ro := config.ResolveOptions{UseSystemEnvironment: true}
	if req.ResolveOptions != nil {
		ro = *req.ResolveOptions
	}

	k := koanf.New(keyDelim)

	if _, err := p.loadResource(k, fsys, p.reference, config.ParseOptions{Syntax: po.Syntax, AllowMissing: true}); err != nil {
		return nil, err
	}

	if err := p.loadRoot(ctx, k, fsys, req, po); err != nil {
		return nil, err
	}

	if p.envOverrides() {
		if err := p.loadEnvOverrides(k); err != nil {
			return nil, err
		}
	}

	resolved, err := newResolver(k.Raw(), ro, p.lookupEnv).resolve()
	if err != nil {
		return nil, err
	}

	p.logger.Debug("configuration loaded",
		"strategy", req.Strategy,
		"keys", len(k.Keys()),
	)
	return config.NewTree(resolved), nil
}

func (p *Parser) loadRoot(ctx context.Context, k *koanf.Koanf, fsys fs.FS, req config.LoadRequest, po config.ParseOptions) error {
	if req.PresetTree != nil {
		if err := k.Load(treeProvider{t: req.PresetTree}, nil); err != nil {
			return ParseError{Origin: origin(po, "preset tree"), Err: err}
		}
		return nil
	}

	if req.ResourceName != nil {
		_, err := p.loadResource(k, fsys, *req.ResourceName, po)
		return err
	}

	root, err := p.root()
	if err != nil {
		return err
	}

	switch root.Kind {
	case env.RootResource:
		_, err = p.loadResource(k, fsys, root.Location, po)
	case env.RootFile:
		err = p.loadFile(k, root.Location, po)
	case env.RootURL:
		err = p.loadURL(ctx, k, root.Location, po)
	default:
		allowMissing := po
		allowMissing.AllowMissing = true
		_, err = p.loadResource(k, fsys, p.application, allowMissing)
	}
	if err == nil && root.Kind != env.RootDefault {
		p.logger.Debug("root configuration read from environment switch", "kind", root.Kind, "location", root.Location)
	}
	return err
}

// loadResource merges every existing candidate of name into k. A name with a
// known extension is read as is; a basename is tried with each extension, later
// extensions winning. It reports whether anything was read.
func (p *Parser) loadResource(k *koanf.Koanf, fsys fs.FS, name string, po config.ParseOptions) (bool, error) {
	candidates := resourceCandidates(name)

	found := false
	for _, c := range candidates {
		if _, err := fs.Stat(fsys, c); err != nil {
			continue
		}
		if err := k.Load(fsProvider{fsys: fsys, name: c}, parserFor(syntaxFor(c, po.Syntax))); err != nil {
			return false, ParseError{Origin: origin(po, c), Err: err}
		}
		p.logger.Trace("resource merged", "resource", c)
		found = true
	}

	if !found && !po.AllowMissing {
		return false, ResourceNotFoundError{Name: name, Candidates: candidates}
	}
	return found, nil
}

func (p *Parser) loadFile(k *koanf.Koanf, filePath string, po config.ParseOptions) error {
	if _, err := os.Stat(filePath); err != nil {
		if po.AllowMissing && os.IsNotExist(err) {
			return nil
		}
		return ResourceNotFoundError{Name: filePath, Candidates: []string{filePath}}
	}
	if err := k.Load(file.Provider(filePath), parserFor(syntaxFor(filePath, po.Syntax))); err != nil {
		return ParseError{Origin: origin(po, filePath), Err: err}
	}
	return nil
}

func (p *Parser) loadURL(ctx context.Context, k *koanf.Koanf, url string, po config.ParseOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchError{URL: url, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && po.AllowMissing {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return FetchError{URL: url, Status: resp.StatusCode}
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return FetchError{URL: url, Err: err}
	}

	syntax := po.Syntax
	if syntax == config.SyntaxAuto && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		syntax = config.SyntaxJSON
	}
	if err := k.Load(bytesProvider(b), parserFor(syntaxFor(req.URL.Path, syntax))); err != nil {
		return ParseError{Origin: origin(po, url), Err: err}
	}
	return nil
}

// loadEnvOverrides merges CONFIG_FORCE_* variables. One underscore is a path
// separator, two are a dash and three are a literal underscore.
func (p *Parser) loadEnvOverrides(k *koanf.Koanf) error {
	provider := koanfenv.Provider(env.OverridePrefix, keyDelim, func(s string) string {
		return overrideKey(strings.TrimPrefix(s, env.OverridePrefix))
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}
	return nil
}

func (p *Parser) fsFor(req config.LoadRequest) fs.FS {
	switch {
	case req.LoaderContext != nil:
		return req.LoaderContext
	case p.loaderContext != nil:
		return p.loaderContext
	default:
		return os.DirFS(env.ConfDir())
	}
}

func overrideKey(s string) string {
	const placeholder = "\x00"
	s = strings.ReplaceAll(s, "___", placeholder)
	s = strings.ReplaceAll(s, "__", "-")
	s = strings.ReplaceAll(s, "_", keyDelim)
	return strings.ReplaceAll(s, placeholder, "_")
}

func resourceCandidates(name string) []string {
	name = strings.TrimPrefix(name, "/")
	ext := path.Ext(name)
	for _, e := range resourceExtensions {
		if ext == e {
			return []string{name}
		}
	}
	candidates := make([]string, 0, len(resourceExtensions))
	for _, e := range resourceExtensions {
		candidates = append(candidates, name+e)
	}
	return candidates
}

func syntaxFor(name string, forced config.Syntax) config.Syntax {
	if forced != config.SyntaxAuto {
		return forced
	}
	if path.Ext(name) == ".json" {
		return config.SyntaxJSON
	}
	return config.SyntaxYAML
}

func origin(po config.ParseOptions, fallback string) string {
	if po.OriginDescription != "" {
		return po.OriginDescription
	}
	return fallback
}
