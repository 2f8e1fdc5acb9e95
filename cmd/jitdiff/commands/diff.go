// Package commands implements CLI command handlers for jitdiff.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dasmtools/jitdiff/internal/config"
	"github.com/dasmtools/jitdiff/internal/observability"
	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/dasm"
	"github.com/dasmtools/jitdiff/pkg/metric"
	"github.com/dasmtools/jitdiff/pkg/summarize"
)

// metricSeparator divides the per-metric text reports.
const metricSeparator = "\n---\n\n"

// Sentinel configuration errors.
var (
	// ErrMissingBase indicates --base was not supplied.
	ErrMissingBase = errors.New("--base is required")
	// ErrMissingDiff indicates --diff was not supplied.
	ErrMissingDiff = errors.New("--diff is required")
	// ErrBadConfiguration wraps the collected configuration errors.
	ErrBadConfiguration = errors.New("invalid arguments")
)

// exitCode records the comparison outcome for the process exit status.
var exitCode int

// ExitCode returns the exit status recorded by the last command run:
// zero when no differences were found, non-zero otherwise.
func ExitCode() int {
	return exitCode
}

// DiffCommand holds configuration for the diff command.
type DiffCommand struct {
	basePath string
	diffPath string

	recursive     bool
	fileExtension string
	count         int
	warn          bool
	metrics       []string
	note          string
	noReconcile   bool

	jsonPath string
	tsvPath  string
	mdPath   string
	htmlPath string

	filter             string
	skipTextDiff       bool
	retainOnlyTopFiles bool

	overrideTotalBase float64
	overrideTotalDiff float64

	isDiffsOnly     bool
	isSubsetOfDiffs bool

	workers    int
	configPath string
	verbose    bool
	noColor    bool

	catalog *metric.Catalog
	log     *slog.Logger
}

// NewDiffCommand creates the diff command.
func NewDiffCommand() *cobra.Command {
	dc := &DiffCommand{catalog: metric.NewCatalog()}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare a base and a diff listing set",
		Long: `Compare two sets of disassembly listings and report per-method metric
regressions and improvements. The base and diff paths may each be a
directory of listing files or a single listing file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          dc.run,
	}

	cmd.Flags().StringVarP(&dc.basePath, "base", "b", "", "Path to the base listing file or directory")
	cmd.Flags().StringVarP(&dc.diffPath, "diff", "d", "", "Path to the diff listing file or directory")
	cmd.Flags().BoolVarP(&dc.recursive, "recursive", "r", false, "Descend into listing subdirectories")
	cmd.Flags().StringVar(&dc.fileExtension, "file-extension", "", "Listing file extension (default .dasm)")
	cmd.Flags().IntVarP(&dc.count, "count", "c", -1, "Ranked-list size per section (0 disables ranked sections)")
	cmd.Flags().BoolVarP(&dc.warn, "warn", "w", false, "Report files present on only one side")
	cmd.Flags().StringSliceVarP(&dc.metrics, "metrics", "m", nil, "Metric names to compare (default CodeSize)")
	cmd.Flags().StringVar(&dc.note, "note", "", "Free-text note prepended to the report")
	cmd.Flags().BoolVar(&dc.noReconcile, "no-reconcile", false, "Exclude one-sided methods from file totals")

	cmd.Flags().StringVar(&dc.jsonPath, "json", "", "Write non-zero file deltas as JSON to this path")
	cmd.Flags().StringVar(&dc.tsvPath, "tsv", "", "Write per-method rows as TSV to this path")
	cmd.Flags().StringVar(&dc.mdPath, "md", "", "Write the report as collapsible Markdown to this path")
	cmd.Flags().StringVar(&dc.htmlPath, "html", "", "Write a top-delta bar chart as HTML to this path")

	cmd.Flags().StringVar(&dc.filter, "filter", "", "Annotation recording how the inputs were filtered")
	cmd.Flags().BoolVar(&dc.skipTextDiff, "skip-text-diff", false, "Skip the textual cross-check of metrically flat pairs")
	cmd.Flags().BoolVar(&dc.retainOnlyTopFiles, "retain-only-top-files", false,
		"After reporting, delete listing pairs not in any top list")

	cmd.Flags().Float64Var(&dc.overrideTotalBase, "override-total-base-metric", 0,
		"Replace the computed base total in the report")
	cmd.Flags().Float64Var(&dc.overrideTotalDiff, "override-total-diff-metric", 0,
		"Replace the computed diff total in the report")

	cmd.Flags().BoolVar(&dc.isDiffsOnly, "is-diffs-only", false,
		"Inputs contain only changed files; suppress unchanged counts")
	cmd.Flags().BoolVar(&dc.isSubsetOfDiffs, "is-subset-of-diffs", false,
		"Inputs are a subset of the changed files; suppress unchanged counts")

	cmd.Flags().IntVar(&dc.workers, "workers", 0, "Parallel parse width (0 = config default)")
	cmd.Flags().StringVar(&dc.configPath, "config", "", "Config file path (default .jitdiff.yaml)")
	cmd.Flags().BoolVarP(&dc.verbose, "verbose", "v", false, "Debug logging plus run statistics")
	cmd.Flags().BoolVar(&dc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (dc *DiffCommand) run(cmd *cobra.Command, _ []string) error {
	exitCode = 0

	cfg, err := config.Load(dc.configPath)
	if err != nil {
		return err
	}

	dc.applyDefaults(cfg)
	dc.log = newLogger(cmd.ErrOrStderr(), dc.verbose, cfg.Logging.Format)

	if err := dc.validate(cmd); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stats, err := observability.NewRunStats()
	if err != nil {
		return err
	}

	base, diff, ok := dc.parseTrees(ctx, cmd.ErrOrStderr(), stats)
	if !ok {
		// A missing input path is reported but does not fail the run.
		return nil
	}

	res, err := dc.compareAndReport(ctx, cmd, base, diff, stats)
	if err != nil {
		return err
	}

	exitCode = res

	if dc.verbose {
		stats.Dump(ctx, dc.log)
	}

	return nil
}

// applyDefaults fills unset flags from the loaded configuration.
func (dc *DiffCommand) applyDefaults(cfg *config.Config) {
	if dc.count < 0 {
		dc.count = cfg.Diff.Count
	}

	if dc.fileExtension == "" {
		dc.fileExtension = cfg.Diff.Extension
	}

	if len(dc.metrics) == 0 {
		dc.metrics = cfg.Diff.Metrics
	}

	if dc.workers <= 0 {
		dc.workers = cfg.Diff.Workers
	}

	if cfg.Diff.Recursive {
		dc.recursive = true
	}

	if cfg.Diff.NoColor {
		dc.noColor = true
	}
}

// validate collects every configuration error before any file I/O.
func (dc *DiffCommand) validate(cmd *cobra.Command) error {
	var problems []string

	if dc.basePath == "" {
		problems = append(problems, ErrMissingBase.Error())
	}

	if dc.diffPath == "" {
		problems = append(problems, ErrMissingDiff.Error())
	}

	for _, name := range dc.metrics {
		if _, _, ok := dc.catalog.Lookup(name); !ok {
			problems = append(problems,
				fmt.Sprintf("unknown metric %q (valid: %s)", name, dc.catalog.Names()))
		}
	}

	baseSet := cmd.Flags().Changed("override-total-base-metric")
	diffSet := cmd.Flags().Changed("override-total-diff-metric")

	if baseSet != diffSet {
		problems = append(problems, summarize.ErrOverridePair.Error())
	}

	if baseSet && len(dc.metrics) > 1 {
		problems = append(problems, "total overrides require a single metric")
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w:\n  %s", ErrBadConfiguration, strings.Join(problems, "\n  "))
}

// parseTrees loads both listing sets. A stat failure on either root is
// reported and ends the run without an error.
func (dc *DiffCommand) parseTrees(
	ctx context.Context,
	errWriter io.Writer,
	stats *observability.RunStats,
) (base, diff []*dasm.File, ok bool) {
	stop := stats.TimePhase(ctx, observability.PhaseParse)
	defer stop()

	parser := dasm.NewParser(dc.catalog, dc.log)
	treeOpts := dasm.TreeOptions{
		Recursive: dc.recursive,
		Extension: dc.fileExtension,
		Workers:   dc.workers,
	}

	base, err := parser.ParseTree(dc.basePath, treeOpts)
	if err != nil {
		fmt.Fprintf(errWriter, "Error: %v\n", err)

		return nil, nil, false
	}

	diff, err = parser.ParseTree(dc.diffPath, treeOpts)
	if err != nil {
		fmt.Fprintf(errWriter, "Error: %v\n", err)

		return nil, nil, false
	}

	stats.AddFilesParsed(ctx, observability.SideBase, len(base))
	stats.AddFilesParsed(ctx, observability.SideDiff, len(diff))

	return base, diff, true
}

// compareAndReport runs one compare and summarize pass per requested
// metric and accumulates every output channel. It returns the process
// exit status: zero iff every metric's total delta is exactly zero.
func (dc *DiffCommand) compareAndReport(
	ctx context.Context,
	cmd *cobra.Command,
	base, diff []*dasm.File,
	stats *observability.RunStats,
) (int, error) {
	out := cmd.OutOrStdout()

	outputs, err := dc.openOutputs()
	if err != nil {
		return 0, err
	}
	defer outputs.close(dc.log)

	summarizer := summarize.New(dc.catalog, dc.log)
	status := 0

	// Each metric pass builds its own FileDelta set; retain marks must
	// survive across passes so a file ranked on any metric is kept.
	retained := make(map[string]bool)

	var lastDeltas []*compare.FileDelta

	for i, metricName := range dc.metrics {
		stopCompare := stats.TimePhase(ctx, observability.PhaseCompare)

		deltas, err := compare.Compare(dc.catalog, base, diff, metricName, !dc.noReconcile)

		stopCompare()

		if err != nil {
			return 0, err
		}

		for _, fd := range deltas {
			stats.AddMethodsCompared(ctx, fd.MatchedMethodCount)
		}

		stopSummarize := stats.TimePhase(ctx, observability.PhaseSummarize)

		res, err := summarizer.Summarize(deltas, metricName, dc.summarizeOptions(cmd))

		stopSummarize()

		if err != nil {
			return 0, err
		}

		if i > 0 {
			fmt.Fprint(out, metricSeparator)
		}

		fmt.Fprint(out, res.Text)

		if res.ExitCode != 0 {
			status = res.ExitCode
		}

		outputs.accumulate(dc, summarizer, metricName, deltas, res)

		if dc.retainOnlyTopFiles {
			for _, fd := range deltas {
				if fd.Retain {
					retained[fd.Name] = true
				}
			}
		}

		lastDeltas = deltas
	}

	if dc.warn {
		dc.warnUnjoined(out, base, diff)
	}

	if err := outputs.flush(dc); err != nil {
		return 0, err
	}

	// Destructive cleanup runs strictly after every report is written.
	// A pair ranked into a top list on ANY requested metric is retained.
	if dc.retainOnlyTopFiles && lastDeltas != nil {
		for _, fd := range lastDeltas {
			if retained[fd.Name] {
				fd.Retain = true
			}
		}

		deleted := summarize.Sweep(lastDeltas, dc.basePath, dc.diffPath, dc.log)
		fmt.Fprintf(out, "Deleted %d unretained listing pair(s).\n", deleted)
	}

	return status, nil
}

func (dc *DiffCommand) summarizeOptions(cmd *cobra.Command) summarize.Options {
	opts := summarize.Options{
		Count:              dc.count,
		Note:               dc.note,
		Filter:             dc.filter,
		RetainOnlyTopFiles: dc.retainOnlyTopFiles,
		IsDiffsOnly:        dc.isDiffsOnly,
		IsSubsetOfDiffs:    dc.isSubsetOfDiffs,
		SkipTextDiff:       dc.skipTextDiff,
		NoColor:            dc.noColor,
		BaseRoot:           dc.basePath,
		DiffRoot:           dc.diffPath,
	}

	if cmd.Flags().Changed("override-total-base-metric") {
		baseTotal, diffTotal := dc.overrideTotalBase, dc.overrideTotalDiff
		opts.OverrideTotalBase = &baseTotal
		opts.OverrideTotalDiff = &diffTotal
	}

	return opts
}

// warnUnjoined reports listing files present on only one side.
func (dc *DiffCommand) warnUnjoined(out io.Writer, base, diff []*dasm.File) {
	onlyBase, onlyDiff := compare.UnjoinedFiles(base, diff)

	for _, name := range onlyBase {
		fmt.Fprintf(out, "Warning: %s present only in base.\n", name)
	}

	for _, name := range onlyDiff {
		fmt.Fprintf(out, "Warning: %s present only in diff.\n", name)
	}
}
