package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// isolate clears every process-wide switch the parser reads.
func isolate(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG_RESOURCE", "CONFIG_FILE", "CONFIG_URL", "CONFIG_OVERRIDE_WITH_ENV_VARS", "CONF_DIR"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func confDirWith(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"confsource"}, args...))
	return out.String(), err
}

func TestShow_Properties(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, map[string]string{
		"reference.yml":   "b: ref\nc: ref",
		"application.yml": "b: 2\na: 1\nlist: [x, y]",
	})

	out, err := run(t, "--dir", dir, "show")
	require.NoError(t, err)
	assert.Equal(t, "a=1\nb=2\nc=ref\nlist=x,y\n", out)
}

func TestShow_JSONWithPrefix(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, map[string]string{
		"application.yml": "globalVal: g\npref1:\n  compound1:\n    val1: a",
	})

	out, err := run(t, "--dir", dir, "--prefix", "pref1", "show", "--format", "json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "a", got["compound1.val1"])
	assert.Equal(t, "g", got["globalVal"])

	out, err = run(t, "--dir", dir, "--prefix", "pref1", "--narrow-only", "show", "--format", "json")
	require.NoError(t, err)
	got = nil
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"compound1.val1": "a"}, got)
}

func TestShow_YAML(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, map[string]string{"application.yml": "server:\n  port: 8080"})

	out, err := run(t, "--dir", dir, "show", "-o", "yaml")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{"server": map[string]any{"port": 8080}}, got)
}

func TestShow_UnknownFormat(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, nil)

	_, err := run(t, "--dir", dir, "show", "--format", "toml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestShow_MissingNamedResource(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, nil)

	_, err := run(t, "--dir", dir, "--resource", "missing", "show")
	assert.ErrorContains(t, err, "resource not found")
}

func TestGet(t *testing.T) {
	isolate(t)
	dir := confDirWith(t, map[string]string{"service.json": `{"db": {"host": "h"}}`})

	out, err := run(t, "--dir", dir, "--resource", "service", "get", "db.host")
	require.NoError(t, err)
	assert.Equal(t, "h\n", out)

	_, err = run(t, "--dir", dir, "--resource", "service", "get", "db.port")
	var ec cli.ExitCoder
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 3, ec.ExitCode())

	_, err = run(t, "--dir", dir, "get")
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 2, ec.ExitCode())
}

func TestStrategy(t *testing.T) {
	isolate(t)

	out, err := run(t, "strategy")
	require.NoError(t, err)
	assert.Equal(t, "default\tnone\n", out)

	out, err = run(t, "--dir", t.TempDir(), "--resource", "app", "strategy")
	require.NoError(t, err)
	assert.Equal(t, "loader_context_resource_name\tresourceName+loaderContext\n", out)

	out, err = run(t, "--resource", "app", "--allow-missing", "--no-env", "strategy")
	require.NoError(t, err)
	assert.Equal(t, "resource_name_parse_options_resolve_options\tresourceName+resolveOptions+parseOptions\n", out)

	_, err = run(t, "--resource", "app", "--allow-missing", "strategy")
	assert.ErrorContains(t, err, "could not get loading strategy")
}

func TestParseSyntax(t *testing.T) {
	_, err := parseSyntax("toml")
	assert.Error(t, err)

	s, err := parseSyntax("YML")
	require.NoError(t, err)
	assert.Equal(t, "yaml", string(s))
}
