package monitor

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wakewatch/internal/session"
)

// series is the progress timeline expanded into chart-ready columns. The
// stored timeline only keeps value changes, so each point is held until the
// next one.
type series struct {
	seconds  []float64
	progress []float64
	volume   []float64
}

func buildSeries(rec session.Record, points []session.ProgressPoint) series {
	var s series
	add := func(at time.Time, p float64) {
		s.seconds = append(s.seconds, at.Sub(rec.StartedAt).Seconds())
		s.progress = append(s.progress, p)
		s.volume = append(s.volume, session.VolumeFor(p))
	}

	add(rec.StartedAt, 0)
	last := 0.0
	for _, pt := range points {
		// Hold the previous value up to this change.
		add(pt.At, last)
		add(pt.At, pt.Progress)
		last = pt.Progress
	}
	if rec.EndedAt.After(rec.StartedAt) {
		add(rec.EndedAt, last)
	}
	return s
}

// RenderProgressChart writes an HTML page charting wake-up progress and the
// matching alarm volume over the session.
func RenderProgressChart(w io.Writer, rec session.Record, points []session.ProgressPoint) error {
	s := buildSeries(rec, points)

	xs := make([]string, len(s.seconds))
	progress := make([]opts.LineData, len(s.seconds))
	volume := make([]opts.LineData, len(s.seconds))
	for i := range s.seconds {
		xs[i] = fmt.Sprintf("%.1f", s.seconds[i])
		progress[i] = opts.LineData{Value: s.progress[i]}
		volume[i] = opts.LineData{Value: s.volume[i]}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Wake session", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Wake-up progress",
			Subtitle: fmt.Sprintf("%s %s outcome=%s peak=%.2f", rec.ID, rec.StartedAt.Format(time.RFC3339), rec.Outcome, rec.PeakProgress),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Seconds", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "Fraction", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(xs).
		AddSeries("progress", progress).
		AddSeries("volume", volume)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
