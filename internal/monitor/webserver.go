package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/gonum/mat"
	"tailscale.com/tsweb"

	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/texture"
	"github.com/banshee-data/texture.report/internal/version"
)

// ResultStore is the read side of the result database.
type ResultStore interface {
	RecentResults(limit int) ([]texture.Result, error)
	LabelCounts() (map[texture.Label]int, error)
}

const (
	defaultResultLimit = 50
	maxResultLimit     = 1000
)

// WebServer serves the status API and the chart debug pages.
type WebServer struct {
	address string
	latest  *Latest
	store   ResultStore
	runID   string
	mux     *http.ServeMux
	server  *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Latest  *Latest
	// Store is optional; without it the result history endpoints return 404.
	Store ResultStore
	RunID string
}

// NewWebServer creates a web server with its routes registered.
func NewWebServer(config WebServerConfig) *WebServer {
	latest := config.Latest
	if latest == nil {
		latest = &Latest{}
	}
	ws := &WebServer{
		address: config.Address,
		latest:  latest,
		store:   config.Store,
		runID:   config.RunID,
	}
	ws.mux = ws.setupRoutes()
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Mux returns the route table so other packages can attach debug routes.
func (ws *WebServer) Mux() *http.ServeMux { return ws.mux }

// Start serves until ctx is cancelled, then shuts the server down.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		monitoring.Opsf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	monitoring.Opsf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Opsf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Opsf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/latest", ws.handleLatest)
	mux.HandleFunc("/api/results", ws.handleResults)
	mux.HandleFunc("/api/labels", ws.handleLabels)

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("grid", "Heatmap of the latest palm grid", ws.handleGridHeatmap)
	debug.HandleFunc("scores", "Chart of recent classifier scores", ws.handleScoreChart)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "texture",
		"version":   version.Version,
		"run_id":    ws.runID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// resultJSON is a Result with its grid spelled out row by row.
type resultJSON struct {
	texture.Result
	InferenceMicros int64       `json:"inference_us"`
	Grid            [][]float64 `json:"grid,omitempty"`
}

func toJSON(res texture.Result) resultJSON {
	out := resultJSON{Result: res, InferenceMicros: res.InferenceMicros()}
	if res.Grid != nil {
		out.Grid = gridRows(res.Grid)
	}
	return out
}

func gridRows(g mat.Matrix) [][]float64 {
	rows, cols := g.Dims()
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, cols)
		for c := range out[r] {
			out[r][c] = g.At(r, c)
		}
	}
	return out
}

func (ws *WebServer) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	res, ok := ws.latest.Get()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no result yet")
		return
	}
	writeJSON(w, http.StatusOK, toJSON(res))
}

func (ws *WebServer) resultLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultResultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxResultLimit {
		return 0, fmt.Errorf("limit must be an integer in [1, %d]", maxResultLimit)
	}
	return n, nil
}

func (ws *WebServer) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if ws.store == nil {
		writeJSONError(w, http.StatusNotFound, "result store disabled")
		return
	}
	limit, err := ws.resultLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := ws.store.RecentResults(limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]resultJSON, len(results))
	for i, res := range results {
		out[i] = toJSON(res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (ws *WebServer) handleLabels(w http.ResponseWriter, r *http.Request) {
	if ws.store == nil {
		writeJSONError(w, http.StatusNotFound, "result store disabled")
		return
	}
	counts, err := ws.store.LabelCounts()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
