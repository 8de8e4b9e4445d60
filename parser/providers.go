package parser

import (
	"io/fs"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/v2"
	fileConfig "github.com/olebedev/config"

	"github.com/wixia/confsource/config"
)

type (
	// fsProvider is a koanf provider that reads a single file from a loader context.
	fsProvider struct {
		fsys fs.FS
		name string
	}

	// bytesProvider is a koanf provider over an in-memory document.
	bytesProvider []byte

	// treeProvider is a koanf provider over an already parsed tree.
	treeProvider struct {
		t *config.Tree
	}

	// jsonParser is a koanf parser for strict JSON documents.
	jsonParser struct{}
)

// ReadBytes returns the file contents.
func (p fsProvider) ReadBytes() ([]byte, error) {
	return fs.ReadFile(p.fsys, p.name)
}

// Read returns an error; fsProvider only supports ReadBytes.
func (p fsProvider) Read() (map[string]any, error) {
	return nil, ErrReadNotSupported
}

// ReadBytes returns the document.
func (b bytesProvider) ReadBytes() ([]byte, error) {
	return b, nil
}

// Read returns an error; bytesProvider only supports ReadBytes.
func (b bytesProvider) Read() (map[string]any, error) {
	return nil, ErrReadNotSupported
}

// ReadBytes returns an error as a tree is already parsed.
func (p treeProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadNotSupported
}

// Read returns a deep copy of the tree so that later merges never touch it.
func (p treeProvider) Read() (map[string]any, error) {
	return maps.Copy(p.t.Raw()), nil
}

// Unmarshal parses a JSON document into a nested map.
func (jsonParser) Unmarshal(b []byte) (map[string]any, error) {
	c, err := fileConfig.ParseJson(string(b))
	if err != nil {
		return nil, err
	}
	m, _ := c.Root.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// Marshal renders a nested map as JSON.
func (jsonParser) Marshal(m map[string]any) ([]byte, error) {
	s, err := fileConfig.RenderJson(m)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// parserFor returns the koanf parser for a syntax.
func parserFor(s config.Syntax) koanf.Parser {
	if s == config.SyntaxJSON {
		return jsonParser{}
	}
	return yaml.Parser()
}
