package summarize

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dasmtools/jitdiff/pkg/compare"
)

// writeFileRanks prints the top improvement and regression files by delta
// on the requested metric, and the per-file change counts. Emitted files
// are marked for retention when the sweep is armed.
func (s *Summarizer) writeFileRanks(b *strings.Builder, deltas []*compare.FileDelta, idx int, opts Options) {
	var improvements, regressions []*compare.FileDelta

	for _, fd := range deltas {
		switch {
		case fd.Delta.Value(idx) < 0:
			improvements = append(improvements, fd)
		case fd.Delta.Value(idx) > 0:
			regressions = append(regressions, fd)
		}
	}

	// Improvements ascending: biggest win first.
	sort.Slice(improvements, func(i, j int) bool {
		return improvements[i].Delta.Value(idx) < improvements[j].Delta.Value(idx)
	})
	// Regressions descending: biggest loss first.
	sort.Slice(regressions, func(i, j int) bool {
		return regressions[i].Delta.Value(idx) > regressions[j].Delta.Value(idx)
	})

	s.writeFileList(b, "Top file regressions", regressions, idx, opts)
	s.writeFileList(b, "Top file improvements", improvements, idx, opts)

	unchanged := len(deltas) - len(improvements) - len(regressions)

	fmt.Fprintf(b, "\n%d total files with %s differences (%d improved, %d regressed)",
		len(improvements)+len(regressions), s.catalog.At(idx).DisplayName, len(improvements), len(regressions))

	if opts.IsDiffsOnly || opts.IsSubsetOfDiffs {
		b.WriteString(".\n")
	} else {
		fmt.Fprintf(b, ", %d unchanged.\n", unchanged)
	}
}

func (s *Summarizer) writeFileList(b *strings.Builder, title string, files []*compare.FileDelta, idx int, opts Options) {
	if len(files) == 0 {
		return
	}

	limit := min(opts.Count, len(files))

	fmt.Fprintf(b, "\n%s (by %s):\n", title, s.catalog.At(idx).DisplayName)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"File", "Delta", "% of base"})

	for _, fd := range files[:limit] {
		delta := fd.Delta.Value(idx)
		pct := delta / fd.Base.Value(idx) * percentMultiplier

		tw.AppendRow(table.Row{fd.Name, formatNumber(delta), fmt.Sprintf("%.2f%%", pct)})

		if opts.RetainOnlyTopFiles {
			fd.Retain = true
		}
	}

	b.WriteString(tw.Render())
	b.WriteString("\n")
}

// methodRow pairs a method delta with its containing file for flattened
// ranking.
type methodRow struct {
	file string
	md   *compare.MethodDelta
}

// writeMethodRanks flattens every method delta and prints four ranked
// lists: regressions and improvements by absolute delta, and the same
// split by delta relative to the method's own base.
func (s *Summarizer) writeMethodRanks(b *strings.Builder, deltas []*compare.FileDelta, idx int, opts Options) {
	var rows []methodRow

	var matched, reconciled int

	for _, fd := range deltas {
		matched += fd.MatchedMethodCount
		reconciled += fd.ReconciledCountBase + fd.ReconciledCountDiff

		for _, md := range fd.MethodDeltas {
			rows = append(rows, methodRow{file: fd.Name, md: md})
		}
	}

	regressions := filterRows(rows, func(r methodRow) bool { return r.md.Delta.Value(idx) > 0 })
	improvements := filterRows(rows, func(r methodRow) bool { return r.md.Delta.Value(idx) < 0 })

	sort.Slice(regressions, func(i, j int) bool {
		return regressions[i].md.Delta.Value(idx) > regressions[j].md.Delta.Value(idx)
	})
	sort.Slice(improvements, func(i, j int) bool {
		return improvements[i].md.Delta.Value(idx) < improvements[j].md.Delta.Value(idx)
	})

	s.writeMethodList(b, "Top method regressions", regressions, idx, opts)
	s.writeMethodList(b, "Top method improvements", improvements, idx, opts)

	// Relative ranking drops methods whose base is zero on this metric:
	// their ratio is not a number and cannot be ordered.
	relRegressions := filterRows(rows, func(r methodRow) bool {
		v := r.md.RelDelta.Value(idx)

		return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
	})
	relImprovements := filterRows(rows, func(r methodRow) bool {
		v := r.md.RelDelta.Value(idx)

		return v < 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
	})

	sort.Slice(relRegressions, func(i, j int) bool {
		return relRegressions[i].md.RelDelta.Value(idx) > relRegressions[j].md.RelDelta.Value(idx)
	})
	sort.Slice(relImprovements, func(i, j int) bool {
		return relImprovements[i].md.RelDelta.Value(idx) < relImprovements[j].md.RelDelta.Value(idx)
	})

	s.writeMethodList(b, "Top method regressions (relative to method base)", relRegressions, idx, opts)
	s.writeMethodList(b, "Top method improvements (relative to method base)", relImprovements, idx, opts)

	changed := len(rows)

	fmt.Fprintf(b, "\n%d total methods with %s differences (%d improved, %d regressed)",
		changed, s.catalog.At(idx).DisplayName, len(improvements), len(regressions))

	if opts.IsDiffsOnly || opts.IsSubsetOfDiffs {
		b.WriteString(".\n")
	} else {
		unchanged := matched - (changed - reconciled)
		fmt.Fprintf(b, ", %d unchanged.\n", unchanged)
	}
}

func (s *Summarizer) writeMethodList(b *strings.Builder, title string, rows []methodRow, idx int, opts Options) {
	if len(rows) == 0 {
		return
	}

	limit := min(opts.Count, len(rows))

	fmt.Fprintf(b, "\n%s (by %s):\n", title, s.catalog.At(idx).DisplayName)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"File", "Method", "Delta", "% of base"})

	for _, r := range rows[:limit] {
		name := r.md.Name
		if r.md.BaseOffsetCount != r.md.DiffOffsetCount {
			// Duplicate-name collision: the sides saw different numbers
			// of physical occurrences.
			name = fmt.Sprintf("%s (%d base / %d diff occurrences)", name, r.md.BaseOffsetCount, r.md.DiffOffsetCount)
		}

		tw.AppendRow(table.Row{
			r.file,
			name,
			formatNumber(r.md.Delta.Value(idx)),
			fmt.Sprintf("%.2f%%", r.md.RelDelta.Value(idx)*percentMultiplier),
		})
	}

	b.WriteString(tw.Render())
	b.WriteString("\n")
}

func filterRows(rows []methodRow, keep func(methodRow) bool) []methodRow {
	var out []methodRow

	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}

	return out
}
