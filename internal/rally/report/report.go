// Package report renders post-run artifacts: an HTML summary of the
// detected rallies and PNG trajectory plots for tuning the validator.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/courtside-data/rallycut/internal/rally"
)

// RenderRunReport writes an HTML report for one finished run: a timeline of
// the keep segments over the source video plus the headline run counters.
func RenderRunReport(w io.Writer, srcPath string, res *rally.RunResult) error {
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(timelineChart(srcPath, res), statsChart(res))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render run report: %w", err)
	}
	return nil
}

// WriteRunReport renders the HTML report to a file.
func WriteRunReport(path, srcPath string, res *rally.RunResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if err := RenderRunReport(f, srcPath, res); err != nil {
		return err
	}
	rally.Diagf("[Report] wrote %s", path)
	return nil
}

// timelineChart draws each keep segment as a bar positioned on the video
// timeline, so gaps between rallies are visible at a glance.
func timelineChart(srcPath string, res *rally.RunResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Rally timeline",
			Width:     "1200px",
			Height:    "320px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Rally timeline",
			Subtitle: fmt.Sprintf("%s: %d segments, %.1fs of %.1fs kept (%.0f%%)",
				filepath.Base(srcPath), len(res.Keep), res.Stats.KeepSeconds,
				res.Stats.VideoDuration, res.Stats.Coverage()*100),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "seconds"}),
	)

	labels := make([]string, len(res.Keep))
	offsets := make([]opts.BarData, len(res.Keep))
	durations := make([]opts.BarData, len(res.Keep))
	for i, r := range res.Keep {
		labels[i] = fmt.Sprintf("rally %d", i+1)
		// Transparent offset bar shifts the visible bar to the segment start.
		offsets[i] = opts.BarData{Value: r.Start, ItemStyle: &opts.ItemStyle{Opacity: opts.Float(0.0)}}
		durations[i] = opts.BarData{Value: r.Duration(), Name: r.String()}
	}

	bar.SetXAxis(labels).
		AddSeries("offset", offsets, charts.WithBarChartOpts(opts.BarChart{Stack: "timeline"})).
		AddSeries("duration", durations, charts.WithBarChartOpts(opts.BarChart{Stack: "timeline"}))
	return bar
}

// statsChart summarizes the run counters as a simple bar chart.
func statsChart(res *rally.RunResult) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  "600px",
			Height: "320px",
		}),
		charts.WithTitleOpts(opts.Title{Title: "Run counters"}),
	)

	bar.SetXAxis([]string{"frames", "detections", "valid frames", "tracks", "rallies"}).
		AddSeries("count", []opts.BarData{
			{Value: res.Stats.FramesProcessed},
			{Value: res.Stats.Detections},
			{Value: res.Stats.ValidFrames},
			{Value: res.Stats.TracksCreated},
			{Value: res.Stats.Rallies},
		})
	return bar
}

// SaveTrajectoryPlot writes a PNG of a track's vertical motion over time
// together with its fitted parabola. Useful when tuning the physics gates.
func SaveTrajectoryPlot(path string, tr *rally.Track, fit *rally.QuadraticFit) error {
	if tr == nil || len(tr.Samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Track %s vertical trajectory", tr.ID)
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "y (normalized, down)"

	first := tr.Samples[0].Timestamp
	pts := make(plotter.XYs, 0, len(tr.Samples))
	for _, s := range tr.Samples {
		pts = append(pts, plotter.XY{X: s.Timestamp - first, Y: s.Pos.Y})
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build scatter: %w", err)
	}
	p.Add(scatter)
	p.Legend.Add("observed", scatter)

	if fit != nil {
		fitPts := make(plotter.XYs, 0, 100)
		span := pts[len(pts)-1].X
		for i := 0; i <= 100; i++ {
			t := span * float64(i) / 100
			fitPts = append(fitPts, plotter.XY{X: t, Y: fit.A*t*t + fit.B*t + fit.C})
		}
		line, err := plotter.NewLine(fitPts)
		if err != nil {
			return fmt.Errorf("failed to build fit line: %w", err)
		}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("fit R²=%.3f", fit.R2), line)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create plot dir: %w", err)
	}
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	rally.Diagf("[Report] wrote %s", path)
	return nil
}
