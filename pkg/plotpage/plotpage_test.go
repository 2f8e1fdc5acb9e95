package plotpage_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasmtools/jitdiff/pkg/plotpage"
)

func TestWritePage_RendersBarChart(t *testing.T) {
	t.Parallel()

	bar := plotpage.BuildBarChart("CodeSize regressions", "bytes",
		[]string{"a.dasm", "b.dasm"},
		[]plotpage.BarSeries{
			{Name: "regressions", Values: []float64{40, 12}, Color: plotpage.RegressionColor()},
			{Name: "improvements", Values: []float64{0, -8}, Color: plotpage.ImprovementColor()},
		})

	var buf bytes.Buffer
	require.NoError(t, plotpage.WritePage(&buf, "jitdiff report", bar))

	out := buf.String()
	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "CodeSize regressions")
	assert.Contains(t, out, "a.dasm")
	assert.Contains(t, out, "regressions")
}
