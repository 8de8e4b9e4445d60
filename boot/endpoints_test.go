package boot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wixia/confsource/config"
)

type swappableParser struct {
	mu  sync.Mutex
	doc string
	err error
}

func (p *swappableParser) set(doc string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doc, p.err = doc, err
}

func (p *swappableParser) Load(context.Context, config.LoadRequest) (*config.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return config.ParseYAML(p.doc)
}

func newServedSource(t *testing.T, p config.Parser, opts ...config.SourceOption) *config.Source {
	t.Helper()
	set, err := config.NewOptionSet(config.WithParseOptions(config.ParseOptions{}))
	require.NoError(t, err)
	src, err := config.NewSource(p, set, opts...)
	require.NoError(t, err)
	require.NoError(t, src.Init(context.Background()))
	return src
}

func do(t *testing.T, h http.Handler, method, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestConfigServlet_Get(t *testing.T) {
	p := &swappableParser{doc: "database:\n  host: db\n  port: 5432\nname: app"}
	h := NewHandler(newServedSource(t, p))

	code, body := do(t, h, http.MethodGet, "/config")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{
		"database.host": "db",
		"database.port": "5432",
		"name":          "app",
	}, body["values"])

	code, body = do(t, h, http.MethodGet, "/config?key=database")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"host": "db", "port": "5432"}, body["values"])

	code, body = do(t, h, http.MethodGet, "/config?cached=maybe")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}

func TestConfigServlet_GetUncached(t *testing.T) {
	p := &swappableParser{doc: "a: 1"}
	h := NewHandler(newServedSource(t, p))

	p.set("a: 2", nil)

	_, body := do(t, h, http.MethodGet, "/config")
	assert.Equal(t, map[string]any{"a": "1"}, body["values"])

	_, body = do(t, h, http.MethodGet, "/config?cached=false")
	assert.Equal(t, map[string]any{"a": "2"}, body["values"])
}

func TestConfigServlet_Reload(t *testing.T) {
	p := &swappableParser{doc: "a: 1"}
	src := newServedSource(t, p)
	h := NewHandler(src)

	p.set("a: 2", nil)
	code, _ := do(t, h, http.MethodPost, "/config/reload")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, src.Int(context.Background(), "a", 0))

	p.set("", errors.New("boom"))
	code, body := do(t, h, http.MethodPost, "/config/reload")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, body["error"], "boom")
	assert.Equal(t, 2, src.Int(context.Background(), "a", 0))

	code, _ = do(t, h, http.MethodGet, "/config/reload")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestConfigServlet_ReloadSubscriberFailure(t *testing.T) {
	p := &swappableParser{doc: "a: 1"}
	src := newServedSource(t, p)
	src.Subscribe(func(context.Context) error { return errors.New("listener failed") })
	h := NewHandler(src)

	p.set("a: 2", nil)
	code, _ := do(t, h, http.MethodPost, "/config/reload")
	assert.Equal(t, http.StatusMultiStatus, code)
}

func TestConfigServlet_Strategy(t *testing.T) {
	h := NewHandler(newServedSource(t, &swappableParser{doc: "a: 1"}, config.WithName("svc")))

	code, body := do(t, h, http.MethodGet, "/config/strategy")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "svc", body["source"])
	assert.Equal(t, "parse_options", body["strategy"])
	assert.Equal(t, []any{"parseOptions"}, body["fields"])
}

func TestHandler_PingAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := newServedSource(t, &swappableParser{doc: "a: 1"}, config.WithMetrics(reg))

	h := NewHandler(src, WithGatherer(reg))

	code, _ := do(t, h, http.MethodGet, "/ping")
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "confsource_resolves_total")

	code, _ = do(t, NewHandler(src), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRecovery(t *testing.T) {
	h := recovery(hclogNull(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	code, body := do(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", body["error"])
}
