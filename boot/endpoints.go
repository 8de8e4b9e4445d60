package boot

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/wixia/confsource/config"
)

const (
	// Query parameter constants for config servlet.
	configServletQueryParamKey    = "key"
	configServletQueryParamCached = "cached"
)

type (
	// configServlet exposes the resolved view of a source over HTTP, so the
	// configuration a process is running with can be inspected and reloaded.
	configServlet struct {
		conf configServletConfiguration
	}

	// configServletResponse is the response body of GET /config.
	configServletResponse struct {
		Values map[string]string `json:"values"`
	}

	// strategyResponse is the response body of GET /config/strategy.
	strategyResponse struct {
		Source   string   `json:"source"`
		Strategy string   `json:"strategy"`
		Fields   []string `json:"fields"`
	}

	// errorResponse is the body of every non 2xx response.
	errorResponse struct {
		Status int    `json:"status"`
		Error  string `json:"error"`
	}

	// configServletConfiguration is what the servlet needs from a source.
	configServletConfiguration = Config
)

// newConfigServlet creates a servlet over confs.
//
// Example:
//
//	servlet := newConfigServlet(src)
//	mux.HandleFunc("GET /config", servlet.Get)
//	mux.HandleFunc("POST /config/reload", servlet.Reload)
func newConfigServlet(confs configServletConfiguration) *configServlet {
	return &configServlet{
		conf: confs,
	}
}

// Get returns the flattened view, optionally filtered by key.
//
// Query Parameters:
//   - key: object path to return (default: "" for the whole view)
//   - cached: false reloads the source before reading (default: true)
//
// Examples:
//
//	GET /config                     -> every resolved value
//	GET /config?key=database        -> database.* values, keys relative to database
//	GET /config?cached=false        -> reloads, then returns every value
//
// Response format:
//
//	{
//	  "values": {
//	    "host": "localhost",
//	    "port": "5432"
//	  }
//	}
func (c *configServlet) Get(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()

	uc := true // default to the last resolved view
	if ucs := q.Get(configServletQueryParamCached); len(ucs) > 0 {
		v, err := strconv.ParseBool(ucs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		uc = v
	}

	opts := []config.Option{config.EnablePartialLookUp()}
	if !uc {
		opts = append(opts, config.NoCache())
	}

	values := c.conf.Map(req.Context(), q.Get(configServletQueryParamKey), map[string]string{}, opts...)
	writeJSON(w, http.StatusOK, configServletResponse{
		Values: values,
	})
}

// Reload re-reads the external sources. On failure the last good view is kept
// and the error is reported; a failing subscriber answers 207 since the view was
// swapped anyway.
func (c *configServlet) Reload(w http.ResponseWriter, req *http.Request) {
	if err := c.conf.Reload(req.Context()); err != nil {
		status := http.StatusInternalServerError
		var rerr config.BaseRefreshError
		if errors.As(err, &rerr) {
			status = http.StatusMultiStatus
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// Strategy describes the loading strategy of the source.
func (c *configServlet) Strategy(w http.ResponseWriter, _ *http.Request) {
	s := c.conf.Strategy()
	writeJSON(w, http.StatusOK, strategyResponse{
		Source:   c.conf.Name(),
		Strategy: s.String(),
		Fields:   s.Fields().Names(),
	})
}

// ping answers liveness probes.
func ping(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Status: status, Error: err.Error()})
}
