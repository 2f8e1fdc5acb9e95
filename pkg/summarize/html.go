package summarize

import (
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/plotpage"
)

// HTMLReport accumulates one chart per metric pass and renders them as a
// single page.
type HTMLReport struct {
	title string
	bars  []*charts.Bar
}

// NewHTMLReport creates an empty chart report.
func NewHTMLReport(title string) *HTMLReport {
	return &HTMLReport{title: title}
}

// Add builds the bar chart for one metric pass: the top regressed and
// improved files side by side, capped at count per side.
func (h *HTMLReport) Add(s *Summarizer, deltas []*compare.FileDelta, metricName string, count int) {
	idx, desc, ok := s.catalog.Lookup(metricName)
	if !ok || count <= 0 {
		return
	}

	var changed []*compare.FileDelta

	for _, fd := range deltas {
		if fd.Delta.Value(idx) != 0 {
			changed = append(changed, fd)
		}
	}

	if len(changed) == 0 {
		return
	}

	// Largest magnitude first, both signs interleaved by |delta|.
	sort.Slice(changed, func(i, j int) bool {
		return abs(changed[i].Delta.Value(idx)) > abs(changed[j].Delta.Value(idx))
	})

	limit := min(count, len(changed))
	changed = changed[:limit]

	labels := make([]string, limit)
	regressions := plotpage.BarSeries{Name: "Regression", Color: plotpage.RegressionColor(), Values: make([]float64, limit)}
	improvements := plotpage.BarSeries{Name: "Improvement", Color: plotpage.ImprovementColor(), Values: make([]float64, limit)}

	for i, fd := range changed {
		labels[i] = fd.Name

		delta := fd.Delta.Value(idx)
		if delta > 0 {
			regressions.Values[i] = delta
		} else {
			improvements.Values[i] = delta
		}
	}

	bar := plotpage.BuildBarChart(
		desc.DisplayName+" delta by file",
		desc.DisplayName+" ("+desc.Unit+")",
		labels,
		[]plotpage.BarSeries{regressions, improvements},
	)

	h.bars = append(h.bars, bar)
}

// Empty reports whether no chart was added.
func (h *HTMLReport) Empty() bool {
	return len(h.bars) == 0
}

// Write renders the accumulated charts.
func (h *HTMLReport) Write(w io.Writer) error {
	return plotpage.WritePage(w, h.title, h.bars...)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
