package monitor

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wakewatch/internal/session"
)

// Default PNG size.
const (
	PlotWidth  = 10 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

var (
	progressColor = color.RGBA{R: 0x1f, G: 0x9e, B: 0x89, A: 0xff}
	volumeColor   = color.RGBA{R: 0xe6, G: 0x55, B: 0x0d, A: 0xff}
)

// WriteProgressPlot renders the session's progress and alarm volume as a PNG.
func WriteProgressPlot(w io.Writer, rec session.Record, points []session.ProgressPoint, width, height vg.Length) error {
	if width <= 0 {
		width = PlotWidth
	}
	if height <= 0 {
		height = PlotHeight
	}
	s := buildSeries(rec, points)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Wake session %s (%s)", rec.StartedAt.Format("2006-01-02 15:04"), rec.Outcome)
	p.X.Label.Text = "Seconds"
	p.Y.Label.Text = "Fraction"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Add(plotter.NewGrid())

	progressPts := make(plotter.XYs, len(s.seconds))
	volumePts := make(plotter.XYs, len(s.seconds))
	for i := range s.seconds {
		progressPts[i] = plotter.XY{X: s.seconds[i], Y: s.progress[i]}
		volumePts[i] = plotter.XY{X: s.seconds[i], Y: s.volume[i]}
	}

	progressLine, err := plotter.NewLine(progressPts)
	if err != nil {
		return fmt.Errorf("progress line: %w", err)
	}
	progressLine.Color = progressColor
	progressLine.Width = vg.Points(1.5)

	volumeLine, err := plotter.NewLine(volumePts)
	if err != nil {
		return fmt.Errorf("volume line: %w", err)
	}
	volumeLine.Color = volumeColor
	volumeLine.Width = vg.Points(1)
	volumeLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(progressLine, volumeLine)
	p.Legend.Add("progress", progressLine)
	p.Legend.Add("volume", volumeLine)
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
