package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/texture.report/internal/texture"
)

type fakeStore struct {
	results []texture.Result
	counts  map[texture.Label]int
	err     error
	limit   int
}

func (f *fakeStore) RecentResults(limit int) ([]texture.Result, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.results) {
		return f.results[:limit], nil
	}
	return f.results, nil
}

func (f *fakeStore) LabelCounts() (map[texture.Label]int, error) {
	return f.counts, f.err
}

func loopbackRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func sampleResult(seq uint64, score float64) texture.Result {
	return texture.Result{
		RunID:     "run-x",
		Seq:       seq,
		Timestamp: time.Date(2024, 1, 1, 0, 0, int(seq), 0, time.UTC),
		Score:     score,
		Label:     texture.Classify(score),
		Inference: 250 * time.Microsecond,
		Grid:      mat.NewDense(2, 2, []float64{0.1, 0, 0, 0.4}),
	}
}

func serve(ws *WebServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ws.Mux().ServeHTTP(w, req)
	return w
}

func TestLatest_CopiesGrid(t *testing.T) {
	var l Latest
	_, ok := l.Get()
	assert.False(t, ok)

	res := sampleResult(1, 0.3)
	l.Observe(res)
	res.Grid.Set(0, 0, 9)

	got, ok := l.Get()
	require.True(t, ok)
	assert.Equal(t, 0.1, got.Grid.At(0, 0))
	got.Grid.Set(1, 1, 7)

	again, _ := l.Get()
	assert.Equal(t, 0.4, again.Grid.At(1, 1))
}

func TestHandleLatest(t *testing.T) {
	latest := &Latest{}
	ws := NewWebServer(WebServerConfig{Latest: latest, RunID: "run-x"})

	w := serve(ws, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	latest.Observe(sampleResult(3, 0.75))
	w = serve(ws, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rough", body["label"])
	assert.Equal(t, 3.0, body["seq"])
	assert.Equal(t, 250.0, body["inference_us"])
	assert.Equal(t, []interface{}{[]interface{}{0.1, 0.0}, []interface{}{0.0, 0.4}}, body["grid"])

	w = serve(ws, httptest.NewRequest(http.MethodPost, "/api/latest", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestWriteJSON_EncodeFailureIs500(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]float64{"score": math.NaN()})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "failed to encode response", body["error"])
}

func TestHandleLatest_NonFiniteScore(t *testing.T) {
	latest := &Latest{}
	ws := NewWebServer(WebServerConfig{Latest: latest})
	latest.Observe(sampleResult(1, math.Inf(1)))

	w := serve(ws, httptest.NewRequest(http.MethodGet, "/api/latest", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestHandleResults(t *testing.T) {
	store := &fakeStore{results: []texture.Result{sampleResult(2, 0.9), sampleResult(1, 0.1)}}
	ws := NewWebServer(WebServerConfig{Store: store})

	w := serve(ws, httptest.NewRequest(http.MethodGet, "/api/results?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, 2.0, body[0]["seq"])
	assert.Equal(t, 1, store.limit)

	serve(ws, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	assert.Equal(t, defaultResultLimit, store.limit)

	for _, bad := range []string{"0", "-3", "abc", "100000"} {
		w := serve(ws, httptest.NewRequest(http.MethodGet, "/api/results?limit="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	store.err = errors.New("disk on fire")
	w = serve(ws, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "disk on fire")
}

func TestHandleResults_NoStore(t *testing.T) {
	ws := NewWebServer(WebServerConfig{})
	for _, path := range []string{"/api/results", "/api/labels"} {
		w := serve(ws, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := serve(ws, loopbackRequest(http.MethodGet, "/debug/scores"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLabels(t *testing.T) {
	store := &fakeStore{counts: map[texture.Label]int{texture.Plain: 4, texture.Rough: 1}}
	ws := NewWebServer(WebServerConfig{Store: store})

	w := serve(ws, httptest.NewRequest(http.MethodGet, "/api/labels", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"plain":4,"rough":1}`, w.Body.String())
}

func TestHandleHealth(t *testing.T) {
	ws := NewWebServer(WebServerConfig{RunID: "run-h"})
	w := serve(ws, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "run-h", body["run_id"])
}

func TestGridHeatmap(t *testing.T) {
	latest := &Latest{}
	ws := NewWebServer(WebServerConfig{Latest: latest})

	w := serve(ws, loopbackRequest(http.MethodGet, "/debug/grid"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	latest.Observe(sampleResult(5, 0.2))
	w = serve(ws, loopbackRequest(http.MethodGet, "/debug/grid"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Palm skin grid")
	assert.Contains(t, w.Body.String(), "heatmap")

	req := httptest.NewRequest(http.MethodGet, "/debug/grid", nil)
	req.RemoteAddr = "198.51.100.2:5555"
	w = serve(ws, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestScoreChart(t *testing.T) {
	store := &fakeStore{results: []texture.Result{sampleResult(2, 0.9), sampleResult(1, 0.1)}}
	ws := NewWebServer(WebServerConfig{Store: store})

	w := serve(ws, loopbackRequest(http.MethodGet, "/debug/scores?limit=10"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Classifier score")
	assert.Equal(t, 10, store.limit)
}

func TestWebServer_StartAndShutdown(t *testing.T) {
	// find a free port, then release it for the server
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ws := NewWebServer(WebServerConfig{Address: addr})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestWebServer_StartFailsOnBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	ws := NewWebServer(WebServerConfig{Address: l.Addr().String()})
	err = ws.Start(context.Background())
	assert.ErrorContains(t, err, "failed to start server")
}

func TestScorePlotter(t *testing.T) {
	sp := NewScorePlotter("scores", 3)
	path := filepath.Join(t.TempDir(), "scores.png")
	assert.Error(t, sp.Save(path), "empty plot")

	for i, s := range []float64{0.1, 0.6, 0.4, 0.8, 0.2} {
		sp.Observe(sampleResult(uint64(i+1), s))
	}
	assert.Equal(t, 3, sp.Len())

	require.NoError(t, sp.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}
