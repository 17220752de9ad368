package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var heatColors = []string{"#440154", "#3e4989", "#26828e", "#35b779", "#b5de2b", "#fde725"}

// handleGridHeatmap renders the latest sensor grid as an HTML heatmap.
func (ws *WebServer) handleGridHeatmap(w http.ResponseWriter, r *http.Request) {
	res, ok := ws.latest.Get()
	if !ok || res.Grid == nil {
		writeJSONError(w, http.StatusNotFound, "no grid yet")
		return
	}

	rows, cols := res.Grid.Dims()
	xs := make([]string, cols)
	for c := range xs {
		xs[c] = strconv.Itoa(c)
	}
	// category axes grow upwards, so list rows bottom first to keep row 0
	// at the top like the console dump
	ys := make([]string, rows)
	for j := range ys {
		ys[j] = strconv.Itoa(rows - 1 - j)
	}

	maxV := 0.0
	data := make([]opts.HeatMapData, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for c := 0; c < cols; c++ {
			v := res.Grid.At(i, c)
			if v > maxV {
				maxV = v
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, rows - 1 - i, v}})
		}
	}
	if maxV == 0 {
		maxV = 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Palm skin grid", Width: "900px", Height: "760px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Palm skin grid",
			Subtitle: fmt.Sprintf("seq=%d label=%s score=%.4f", res.Seq, res.Label, res.Score),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "col", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "row", SplitArea: &opts.SplitArea{Show: opts.Bool(true)}}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxV),
			InRange:    &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.SetXAxis(xs).AddSeries("taxels", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleScoreChart renders the stored score history as a line chart.
func (ws *WebServer) handleScoreChart(w http.ResponseWriter, r *http.Request) {
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

	// results arrive newest first; plot oldest to newest
	xs := make([]string, len(results))
	scores := make([]opts.LineData, len(results))
	for i := range results {
		res := results[len(results)-1-i]
		xs[i] = strconv.FormatUint(res.Seq, 10)
		scores[i] = opts.LineData{Value: res.Score}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Texture scores", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Classifier score", Subtitle: fmt.Sprintf("last %d results", len(results))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "score"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "seq"}),
	)
	line.SetXAxis(xs).AddSeries("score", scores)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
