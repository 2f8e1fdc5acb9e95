package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/dasm"
	"github.com/dasmtools/jitdiff/pkg/metric"
	"github.com/dasmtools/jitdiff/pkg/summarize"
)

// Tool name constants.
const (
	ToolNameDiff    = "jitdiff_diff"
	ToolNameMetrics = "jitdiff_metrics"
)

const (
	diffToolDescription = "Compare two disassembly listing sets (base and diff) " +
		"and report per-metric regressions and improvements."
	metricsToolDescription = "List the metric names available for comparison."
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyBasePath indicates the base parameter is empty.
	ErrEmptyBasePath = errors.New("base parameter is required and must not be empty")
	// ErrEmptyDiffPath indicates the diff parameter is empty.
	ErrEmptyDiffPath = errors.New("diff parameter is required and must not be empty")
	// ErrNegativeCount indicates a negative ranked-list cap.
	ErrNegativeCount = errors.New("count must not be negative")
)

// DiffInput is the input schema for the jitdiff_diff tool.
type DiffInput struct {
	Base        string   `json:"base"                   jsonschema:"path to the base listing file or directory"`
	Diff        string   `json:"diff"                   jsonschema:"path to the diff listing file or directory"`
	Metrics     []string `json:"metrics,omitempty"      jsonschema:"metric names to compare (default: CodeSize)"`
	Count       int      `json:"count,omitempty"        jsonschema:"ranked-list size per section (default: 20)"`
	Recursive   bool     `json:"recursive,omitempty"    jsonschema:"descend into listing subdirectories"`
	NoReconcile bool     `json:"no_reconcile,omitempty" jsonschema:"exclude methods present on only one side from totals"`
}

// MetricsInput is the input schema for the jitdiff_metrics tool.
type MetricsInput struct{}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// MetricReport is the per-metric entry of a diff tool response.
type MetricReport struct {
	Metric        string  `json:"metric"`
	TotalBase     float64 `json:"totalBase"`
	TotalDiff     float64 `json:"totalDiff"`
	TotalDelta    float64 `json:"totalDelta"`
	TotalRelDelta float64 `json:"totalRelativeDelta"`
	Report        string  `json:"report"`
}

// MetricInfo is one entry of the metrics tool response.
type MetricInfo struct {
	Name          string `json:"name"`
	DisplayName   string `json:"displayName"`
	Unit          string `json:"unit"`
	LowerIsBetter bool   `json:"lowerIsBetter"`
}

func (s *Server) handleDiff(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input DiffInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := validateDiffInput(input); err != nil {
		return errorResult(err)
	}

	metrics := input.Metrics
	if len(metrics) == 0 {
		metrics = []string{metric.CodeSize}
	}

	count := input.Count
	if count == 0 {
		count = summarize.DefaultCount
	}

	catalog := metric.NewCatalog()
	parser := dasm.NewParser(catalog, s.log)
	treeOpts := dasm.TreeOptions{Recursive: input.Recursive}

	baseFiles, err := parser.ParseTree(input.Base, treeOpts)
	if err != nil {
		return errorResult(fmt.Errorf("parse base: %w", err))
	}

	diffFiles, err := parser.ParseTree(input.Diff, treeOpts)
	if err != nil {
		return errorResult(fmt.Errorf("parse diff: %w", err))
	}

	summarizer := summarize.New(catalog, s.log)
	reports := make([]MetricReport, 0, len(metrics))

	for _, name := range metrics {
		if ctx.Err() != nil {
			return errorResult(ctx.Err())
		}

		deltas, err := compare.Compare(catalog, baseFiles, diffFiles, name, !input.NoReconcile)
		if err != nil {
			return errorResult(err)
		}

		res, err := summarizer.Summarize(deltas, name, summarize.Options{
			Count:        count,
			NoColor:      true,
			SkipTextDiff: true,
		})
		if err != nil {
			return errorResult(err)
		}

		reports = append(reports, MetricReport{
			Metric:        name,
			TotalBase:     res.TotalBase,
			TotalDiff:     res.TotalDiff,
			TotalDelta:    res.TotalDelta,
			TotalRelDelta: res.TotalRelDelta,
			Report:        res.Text,
		})
	}

	return jsonResult(reports)
}

func (s *Server) handleMetrics(
	_ context.Context,
	_ *mcpsdk.CallToolRequest,
	_ MetricsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	catalog := metric.NewCatalog()
	infos := make([]MetricInfo, 0, catalog.Len())

	for _, d := range catalog.Descriptors() {
		infos = append(infos, MetricInfo{
			Name:          d.Name,
			DisplayName:   d.DisplayName,
			Unit:          d.Unit,
			LowerIsBetter: d.LowerIsBetter,
		})
	}

	return jsonResult(infos)
}

func validateDiffInput(input DiffInput) error {
	if input.Base == "" {
		return ErrEmptyBasePath
	}

	if input.Diff == "" {
		return ErrEmptyDiffPath
	}

	if input.Count < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeCount, input.Count)
	}

	catalog := metric.NewCatalog()
	for _, name := range input.Metrics {
		if _, _, ok := catalog.Lookup(name); !ok {
			return fmt.Errorf("%w: %q (valid: %s)", compare.ErrUnknownMetric, name, catalog.Names())
		}
	}

	return nil
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
