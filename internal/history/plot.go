package history

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/helm/internal/db"
)

// Default PNG dimensions.
const (
	PlotWidth  = 10 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

// RenderPlot writes a PNG of heading and rudder against time.
func RenderPlot(w io.Writer, title string, samples []db.NavSample) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04"}
	p.Y.Label.Text = "Degrees"
	p.Legend.Top = true
	p.Legend.Left = false
	p.Add(plotter.NewGrid())

	if len(samples) > 0 {
		heading := make(plotter.XYs, len(samples))
		rudder := make(plotter.XYs, len(samples))
		for i, s := range samples {
			t := float64(s.Time.Unix())
			heading[i] = plotter.XY{X: t, Y: s.Heading}
			rudder[i] = plotter.XY{X: t, Y: s.Rudder}
		}

		headingLine, err := plotter.NewLine(heading)
		if err != nil {
			return fmt.Errorf("failed to build heading line: %w", err)
		}
		headingLine.Width = vg.Points(1)
		headingLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}

		rudderLine, err := plotter.NewLine(rudder)
		if err != nil {
			return fmt.Errorf("failed to build rudder line: %w", err)
		}
		rudderLine.Width = vg.Points(1)
		rudderLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}

		p.Add(headingLine, rudderLine)
		p.Legend.Add("heading", headingLine)
		p.Legend.Add("rudder", rudderLine)
	}

	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
