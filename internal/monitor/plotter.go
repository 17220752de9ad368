package monitor

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/texture.report/internal/texture"
)

// ScorePlotter accumulates cycle scores and writes them as a PNG line plot.
type ScorePlotter struct {
	mu     sync.Mutex
	title  string
	points plotter.XYs
	max    int
}

// NewScorePlotter keeps at most max points (0 means unbounded).
func NewScorePlotter(title string, max int) *ScorePlotter {
	return &ScorePlotter{title: title, max: max}
}

func (sp *ScorePlotter) Observe(res texture.Result) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.points = append(sp.points, plotter.XY{X: float64(res.Seq), Y: res.Score})
	if sp.max > 0 && len(sp.points) > sp.max {
		sp.points = append(plotter.XYs(nil), sp.points[len(sp.points)-sp.max:]...)
	}
}

// Len returns the number of buffered points.
func (sp *ScorePlotter) Len() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.points)
}

// Save writes the plot to path. The format follows the file extension.
func (sp *ScorePlotter) Save(path string) error {
	sp.mu.Lock()
	pts := append(plotter.XYs(nil), sp.points...)
	sp.mu.Unlock()

	if len(pts) == 0 {
		return fmt.Errorf("no scores to plot")
	}

	p := plot.New()
	p.Title.Text = sp.title
	p.X.Label.Text = "cycle"
	p.Y.Label.Text = "score"
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	scoreLine, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	scoreLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	scoreLine.Width = vg.Points(1)
	p.Add(scoreLine)
	p.Legend.Add("score", scoreLine)

	threshold, err := plotter.NewLine(plotter.XYs{
		{X: pts[0].X, Y: texture.Threshold},
		{X: pts[len(pts)-1].X, Y: texture.Threshold},
	})
	if err != nil {
		return err
	}
	threshold.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	threshold.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(threshold)
	p.Legend.Add("rough threshold", threshold)

	p.Legend.Top = true
	p.Legend.Left = false

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save score plot: %w", err)
	}
	return nil
}
