// Package summarize aggregates comparison results into ranked
// regression/improvement reports and renders them to console, TSV, JSON,
// Markdown and HTML.
package summarize

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/metric"
	"github.com/dasmtools/jitdiff/pkg/textdiff"
)

// DefaultCount is the ranked-list cap applied when none is configured.
const DefaultCount = 20

// ExitDifferences is returned when the total delta is non-zero. It signals
// "there is a diff", not a failure.
const ExitDifferences = -1

// percentMultiplier converts a ratio to a percentage.
const percentMultiplier = 100

// Sentinel errors.
var (
	// ErrOverridePair indicates only one of the two total-override values
	// was supplied.
	ErrOverridePair = errors.New("total overrides must be supplied together")
)

// Options configures one summarize pass.
type Options struct {
	// Count caps every ranked list. Zero disables the ranked sections;
	// the totals block is still printed.
	Count int

	// Note is a free-text line prepended to the report.
	Note string

	// Filter is a display-only annotation recording how the inputs were
	// filtered upstream.
	Filter string

	// OverrideTotalBase and OverrideTotalDiff replace the computed totals
	// in the report. Both or neither must be set.
	OverrideTotalBase *float64
	OverrideTotalDiff *float64

	// RetainOnlyTopFiles marks every file emitted in a top list; Sweep
	// later deletes the unmarked pairs.
	RetainOnlyTopFiles bool

	// IsDiffsOnly and IsSubsetOfDiffs suppress "unchanged" counts that
	// would mislead when the inputs are known-partial.
	IsDiffsOnly     bool
	IsSubsetOfDiffs bool

	// SkipTextDiff disables the textual cross-check for files with zero
	// metric delta.
	SkipTextDiff bool

	// NoColor disables ANSI coloring in the text report.
	NoColor bool

	// BaseRoot and DiffRoot locate the listing files on disk for the
	// textual cross-check and the retain sweep. Empty roots skip both.
	BaseRoot string
	DiffRoot string
}

// Result holds the outcome of one summarize pass over one metric.
type Result struct {
	MetricName string

	TotalBase     float64
	TotalDiff     float64
	TotalDelta    float64
	TotalRelDelta float64

	// Text is the rendered plain-text report.
	Text string

	// ExitCode is 0 when TotalDelta is exactly zero, ExitDifferences
	// otherwise.
	ExitCode int

	// TextDiffs lists files that changed textually with zero metric
	// delta, most-changed first.
	TextDiffs []textdiff.Changes
}

// Summarizer renders reports over a fixed catalog.
type Summarizer struct {
	catalog *metric.Catalog
	log     *slog.Logger
}

// New creates a summarizer.
func New(catalog *metric.Catalog, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Summarizer{catalog: catalog, log: logger}
}

// Summarize runs the reporting pipeline for one metric over the compared
// files: totals, classification, reconciliation counts, ranked file and
// method lists, and the textual cross-check. Destructive cleanup is NOT
// performed here; call Sweep after all metrics are reported.
func (s *Summarizer) Summarize(deltas []*compare.FileDelta, metricName string, opts Options) (*Result, error) {
	idx, desc, ok := s.catalog.Lookup(metricName)
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", compare.ErrUnknownMetric, metricName, s.catalog.Names())
	}

	if (opts.OverrideTotalBase == nil) != (opts.OverrideTotalDiff == nil) {
		return nil, ErrOverridePair
	}

	res := &Result{MetricName: metricName}

	for _, fd := range deltas {
		res.TotalBase += fd.Base.Value(idx)
		res.TotalDiff += fd.Diff.Value(idx)
		res.TotalDelta += fd.Delta.Value(idx)
		res.TotalRelDelta += fd.RelDelta.Value(idx)
	}

	var b strings.Builder

	s.writeHeader(&b, desc, opts)
	s.writeTotals(&b, res, desc, opts)
	s.writeClassification(&b, res.TotalDelta, desc, opts)
	s.writeReconciliation(&b, deltas, idx)

	res.ExitCode = 0
	if res.TotalDelta != 0 {
		res.ExitCode = ExitDifferences
	}

	if opts.Count > 0 {
		s.writeFileRanks(&b, deltas, idx, opts)
		s.writeMethodRanks(&b, deltas, idx, opts)

		if !opts.SkipTextDiff {
			res.TextDiffs = s.textDiffCrossCheck(deltas, opts)
			s.writeTextDiffs(&b, res.TextDiffs, opts.Count)
		}
	}

	res.Text = b.String()

	return res, nil
}

func (s *Summarizer) writeHeader(b *strings.Builder, desc metric.Descriptor, opts Options) {
	if opts.Note != "" {
		fmt.Fprintf(b, "%s\n\n", opts.Note)
	}

	fmt.Fprintf(b, "Summary of %s diffs:\n", desc.DisplayName)

	if desc.LowerIsBetter {
		b.WriteString("(Lower is better)\n")
	} else {
		b.WriteString("(Higher is better)\n")
	}

	if opts.Filter != "" {
		fmt.Fprintf(b, "(Filtered to: %s)\n", opts.Filter)
	}

	b.WriteString("\n")
}

func (s *Summarizer) writeTotals(b *strings.Builder, res *Result, desc metric.Descriptor, opts Options) {
	if opts.OverrideTotalBase != nil && opts.OverrideTotalDiff != nil {
		base, diff := *opts.OverrideTotalBase, *opts.OverrideTotalDiff
		delta := diff - base

		fmt.Fprintf(b, "Total %s of base: %s (overridden on cmd)\n", desc.Unit, formatValue(base, desc))
		fmt.Fprintf(b, "Total %s of diff: %s (overridden on cmd)\n", desc.Unit, formatValue(diff, desc))
		fmt.Fprintf(b, "Total %s of delta: %s (%.2f %% of base)\n",
			desc.Unit, formatValue(delta, desc), delta/base*percentMultiplier)

		return
	}

	if res.TotalBase == 0 {
		// Common symptom of comparing against a non-optimized build; a
		// percentage would divide by zero.
		fmt.Fprintf(b, "Warning: the base metric total is 0; did you mean to diff against these files?\n")
		fmt.Fprintf(b, "Total %s of diff: %s\n", desc.Unit, formatValue(res.TotalDiff, desc))
		fmt.Fprintf(b, "Total %s of delta: %s\n", desc.Unit, formatValue(res.TotalDelta, desc))

		return
	}

	fmt.Fprintf(b, "Total %s of base: %s\n", desc.Unit, formatValue(res.TotalBase, desc))
	fmt.Fprintf(b, "Total %s of diff: %s\n", desc.Unit, formatValue(res.TotalDiff, desc))
	fmt.Fprintf(b, "Total %s of delta: %s (%.2f %% of base)\n",
		desc.Unit, formatValue(res.TotalDelta, desc), res.TotalDelta/res.TotalBase*percentMultiplier)

	if res.TotalRelDelta != 0 {
		// Sum of per-file relative deltas, not the relative delta of the
		// totals. Kept for compatibility with the reference tool.
		fmt.Fprintf(b, "Total relative delta: %.4f\n", res.TotalRelDelta)
	}
}

func (s *Summarizer) writeClassification(b *strings.Builder, totalDelta float64, desc metric.Descriptor, opts Options) {
	if totalDelta == 0 {
		b.WriteString("\nNo difference found on this metric.\n")

		return
	}

	if desc.LowerIsBetter == (totalDelta < 0) {
		fmt.Fprintf(b, "\n%s\n", colorize("diff is an improvement.", color.FgGreen, opts.NoColor))
	} else {
		fmt.Fprintf(b, "\n%s\n", colorize("diff is a regression.", color.FgRed, opts.NoColor))
	}
}

func (s *Summarizer) writeReconciliation(b *strings.Builder, deltas []*compare.FileDelta, idx int) {
	var countBase, countDiff int

	var sumBase, sumDiff float64

	for _, fd := range deltas {
		countBase += fd.ReconciledCountBase
		countDiff += fd.ReconciledCountDiff
		sumBase += fd.ReconciledBase.Value(idx)
		sumDiff += fd.ReconciledDiff.Value(idx)
	}

	if countBase == 0 && countDiff == 0 {
		return
	}

	b.WriteString("\n")

	if countBase > 0 {
		fmt.Fprintf(b, "%d method(s) present only in base (total metric %s)\n", countBase, formatNumber(sumBase))
	}

	if countDiff > 0 {
		fmt.Fprintf(b, "%d method(s) present only in diff (total metric %s)\n", countDiff, formatNumber(sumDiff))
	}
}

// textDiffCrossCheck diffs the on-disk text of every pair whose metric
// bundle did not move at all. Zero is judged over the WHOLE bundle, not
// the reported metric: a pair that moved on any metric already surfaces
// in that metric's report, so only truly flat pairs need the textual
// check. Failures degrade to "no textual diffs".
func (s *Summarizer) textDiffCrossCheck(deltas []*compare.FileDelta, opts Options) []textdiff.Changes {
	if opts.BaseRoot == "" || opts.DiffRoot == "" {
		return nil
	}

	var changed []textdiff.Changes

	for _, fd := range deltas {
		if !fd.Delta.IsZero() {
			continue
		}

		basePath, ok := resolveListing(opts.BaseRoot, fd.Name)
		if !ok {
			continue
		}

		diffPath, ok := resolveListing(opts.DiffRoot, fd.Name)
		if !ok {
			continue
		}

		changes, err := textdiff.Count(basePath, diffPath)
		if err != nil {
			s.log.Warn("text diff failed; treating as unchanged", "file", fd.Name, "error", err)

			continue
		}

		if changes.Total() == 0 {
			continue
		}

		changes.Name = fd.Name
		changed = append(changed, changes)
	}

	sort.Slice(changed, func(i, j int) bool {
		if changed[i].Total() != changed[j].Total() {
			return changed[i].Total() > changed[j].Total()
		}

		return changed[i].Name < changed[j].Name
	})

	return changed
}

func (s *Summarizer) writeTextDiffs(b *strings.Builder, changed []textdiff.Changes, count int) {
	if len(changed) == 0 {
		return
	}

	fmt.Fprintf(b, "\n%d file(s) differ only textually (no metric delta):\n", len(changed))

	for i, c := range changed {
		if i >= count {
			break
		}

		fmt.Fprintf(b, "    %s (+%d/-%d lines)\n", c.Name, c.Added, c.Removed)
	}
}

// formatValue renders a metric value, humanizing byte-unit totals.
func formatValue(v float64, desc metric.Descriptor) string {
	s := formatNumber(v)

	if desc.Unit == "byte" && math.Abs(v) >= humanize.KiByte {
		return fmt.Sprintf("%s (%s)", s, humanize.IBytes(uint64(math.Abs(v))))
	}

	return s
}

// formatNumber drops the fraction when the value is integral.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) && !math.IsNaN(v) {
		return fmt.Sprintf("%.0f", v)
	}

	return fmt.Sprintf("%.2f", v)
}

func colorize(s string, attr color.Attribute, noColor bool) string {
	if noColor {
		return s
	}

	return color.New(attr).Sprint(s)
}
