package history

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/helm/internal/db"
)

// AssetsHost serves the echarts JavaScript. Deployments without internet
// access can point it at a local mirror.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderChart writes an HTML line chart of heading, goal and desired goal.
func RenderChart(w io.Writer, title string, samples []db.NavSample) error {
	x := make([]string, len(samples))
	heading := make([]opts.LineData, len(samples))
	goal := make([]opts.LineData, len(samples))
	desired := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.Time.Format("15:04:05")
		heading[i] = opts.LineData{Value: s.Heading}
		goal[i] = opts.LineData{Value: s.Goal}
		desired[i] = opts.LineData{Value: s.DesiredGoal}
	}

	subtitle := "no samples"
	if len(samples) > 0 {
		subtitle = fmt.Sprintf("%s to %s, %d samples",
			samples[0].Time.Format("2006-01-02 15:04"), samples[len(samples)-1].Time.Format("15:04"), len(samples))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "degrees", Min: 0, Max: 360}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).
		AddSeries("heading", heading).
		AddSeries("goal", goal, charts.WithLineChartOpts(opts.LineChart{Step: "end"})).
		AddSeries("desired goal", desired, charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	return line.Render(w)
}
