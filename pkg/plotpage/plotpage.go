// Package plotpage builds the HTML chart report: one bar chart per
// requested metric showing the largest per-file deltas.
package plotpage

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const (
	chartWidth  = "1200px"
	chartHeight = "500px"

	regressionColor  = "#c0392b"
	improvementColor = "#27ae60"
)

// BarSeries holds one named series of values aligned with the chart
// labels.
type BarSeries struct {
	Name   string
	Values []float64
	Color  string
}

// BuildBarChart constructs a configured bar chart. Labels are the X axis
// categories (file names); the Y axis carries the metric delta.
func BuildBarChart(title, yAxisLabel string, labels []string, series []BarSeries) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yAxisLabel}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 45}}),
	)

	bar.SetXAxis(labels)

	for _, s := range series {
		data := make([]opts.BarData, len(s.Values))
		for i, v := range s.Values {
			data[i] = opts.BarData{Value: v}
		}

		var seriesOpts []charts.SeriesOpts
		if s.Color != "" {
			seriesOpts = append(seriesOpts, charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}))
		}

		bar.AddSeries(s.Name, data, seriesOpts...)
	}

	return bar
}

// RegressionColor and ImprovementColor are the standard series colors.
func RegressionColor() string  { return regressionColor }
func ImprovementColor() string { return improvementColor }

// WritePage renders the charts as a single HTML page.
func WritePage(w io.Writer, title string, bars ...*charts.Bar) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, bar := range bars {
		page.AddCharts(bar)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart page: %w", err)
	}

	return nil
}
