package summarize

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/dasm"
	"github.com/dasmtools/jitdiff/pkg/metric"
)

// TSVWriter streams one row per method delta, with the full catalog's
// Base/Diff/Delta/Percentage columns, tab-separated and un-formatted.
// Rows from several metric passes accumulate under a single header.
type TSVWriter struct {
	catalog *metric.Catalog
	w       io.Writer

	wroteHeader bool
}

// NewTSVWriter creates a TSV writer over the catalog.
func NewTSVWriter(catalog *metric.Catalog, w io.Writer) *TSVWriter {
	return &TSVWriter{catalog: catalog, w: w}
}

// Append writes the method-delta rows of one compare pass.
func (t *TSVWriter) Append(deltas []*compare.FileDelta) error {
	if !t.wroteHeader {
		if err := t.writeHeader(); err != nil {
			return err
		}

		t.wroteHeader = true
	}

	for _, fd := range deltas {
		for _, md := range fd.MethodDeltas {
			if err := t.writeRow(fd.Name, md); err != nil {
				return err
			}
		}
	}

	return nil
}

func (t *TSVWriter) writeHeader() error {
	cols := []string{"File", "Method"}

	for _, d := range t.catalog.Descriptors() {
		cols = append(cols,
			d.Name+" Base", d.Name+" Diff", d.Name+" Delta", d.Name+" Percentage")
	}

	return t.writeLine(cols)
}

func (t *TSVWriter) writeRow(file string, md *compare.MethodDelta) error {
	cols := []string{file, md.Name}

	for i := range t.catalog.Len() {
		cols = append(cols,
			rawFloat(md.Base.Value(i)),
			rawFloat(md.Diff.Value(i)),
			rawFloat(md.Delta.Value(i)),
			rawFloat(md.RelDelta.Value(i)*percentMultiplier))
	}

	return t.writeLine(cols)
}

func (t *TSVWriter) writeLine(cols []string) error {
	_, err := fmt.Fprintln(t.w, strings.Join(cols, "\t"))
	if err != nil {
		return fmt.Errorf("write tsv: %w", err)
	}

	return nil
}

// rawFloat renders a value without display formatting. Non-finite ratios
// (zero base) render as empty cells.
func rawFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}

	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Export accumulates non-zero FileDeltas across metric passes for JSON
// output.
type Export struct {
	catalog *metric.Catalog
	entries []fileDeltaJSON
}

type fileDeltaJSON struct {
	Metric              string             `json:"metric"`
	Name                string             `json:"name"`
	Base                map[string]float64 `json:"base"`
	Diff                map[string]float64 `json:"diff"`
	Delta               map[string]float64 `json:"delta"`
	RelDelta            map[string]float64 `json:"relativeDelta"`
	ReconciledCountBase int                `json:"reconciledCountBase"`
	ReconciledCountDiff int                `json:"reconciledCountDiff"`
	MethodsOnlyInBase   []string           `json:"methodsOnlyInBase,omitempty"`
	MethodsOnlyInDiff   []string           `json:"methodsOnlyInDiff,omitempty"`
	Methods             []methodDeltaJSON  `json:"methods"`
}

type methodDeltaJSON struct {
	Name            string             `json:"name"`
	Base            map[string]float64 `json:"base"`
	Diff            map[string]float64 `json:"diff"`
	Delta           map[string]float64 `json:"delta"`
	BaseOffsetCount int                `json:"baseOffsetCount"`
	DiffOffsetCount int                `json:"diffOffsetCount"`
}

// NewExport creates an empty JSON export accumulator.
func NewExport(catalog *metric.Catalog) *Export {
	return &Export{catalog: catalog}
}

// Add records the FileDeltas of one metric pass whose delta on that metric
// is non-zero.
func (e *Export) Add(metricName string, deltas []*compare.FileDelta) {
	idx, _, ok := e.catalog.Lookup(metricName)
	if !ok {
		return
	}

	for _, fd := range deltas {
		if fd.Delta.Value(idx) == 0 {
			continue
		}

		e.entries = append(e.entries, e.fileEntry(metricName, fd))
	}
}

// Len returns the number of accumulated entries.
func (e *Export) Len() int {
	return len(e.entries)
}

// WriteJSON renders the accumulated entries as an indented JSON array.
func (e *Export) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(e.entries); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}

	return nil
}

func (e *Export) fileEntry(metricName string, fd *compare.FileDelta) fileDeltaJSON {
	entry := fileDeltaJSON{
		Metric:              metricName,
		Name:                fd.Name,
		Base:                e.bundleMap(fd.Base),
		Diff:                e.bundleMap(fd.Diff),
		Delta:               e.bundleMap(fd.Delta),
		RelDelta:            e.bundleMap(fd.RelDelta),
		ReconciledCountBase: fd.ReconciledCountBase,
		ReconciledCountDiff: fd.ReconciledCountDiff,
		MethodsOnlyInBase:   recordNames(fd.MethodsOnlyInBase),
		MethodsOnlyInDiff:   recordNames(fd.MethodsOnlyInDiff),
		Methods:             make([]methodDeltaJSON, 0, len(fd.MethodDeltas)),
	}

	for _, md := range fd.MethodDeltas {
		entry.Methods = append(entry.Methods, methodDeltaJSON{
			Name:            md.Name,
			Base:            e.bundleMap(md.Base),
			Diff:            e.bundleMap(md.Diff),
			Delta:           e.bundleMap(md.Delta),
			BaseOffsetCount: md.BaseOffsetCount,
			DiffOffsetCount: md.DiffOffsetCount,
		})
	}

	return entry
}

// bundleMap flattens a bundle to name → value. Non-finite values are
// zeroed: encoding/json rejects NaN and Inf.
func (e *Export) bundleMap(b *metric.Bundle) map[string]float64 {
	m := make(map[string]float64, e.catalog.Len())

	for i, d := range e.catalog.Descriptors() {
		v := b.Value(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}

		m[d.Name] = v
	}

	return m
}

func recordNames(recs []*dasm.MethodRecord) []string {
	if len(recs) == 0 {
		return nil
	}

	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}

	return names
}

// WriteMarkdown wraps a plain-text report in a collapsible fenced block.
func WriteMarkdown(w io.Writer, summary, text string) error {
	_, err := fmt.Fprintf(w, "<details>\n<summary>%s</summary>\n\n```\n%s\n```\n\n</details>\n", summary, text)
	if err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}

	return nil
}

// Sweep deletes every base/diff listing pair whose FileDelta was not
// marked Retain, and returns the number of pairs removed. It must run
// strictly after all reporting: reports read the files it deletes.
func Sweep(deltas []*compare.FileDelta, baseRoot, diffRoot string, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}

	deleted := 0

	for _, fd := range deltas {
		if fd.Retain {
			continue
		}

		removedAny := false

		for _, root := range []string{baseRoot, diffRoot} {
			path, ok := resolveListing(root, fd.Name)
			if !ok {
				continue
			}

			if err := os.Remove(path); err != nil {
				logger.Warn("sweep: cannot remove listing", "path", path, "error", err)

				continue
			}

			removedAny = true
		}

		if removedAny {
			deleted++
		}
	}

	return deleted
}

// resolveListing finds the on-disk file for a relative listing name,
// accepting the compressed variant. A root that is itself a file (the
// standalone single-file mode) resolves to the root directly.
func resolveListing(root, name string) (string, bool) {
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return root, true
	}

	for _, candidate := range []string{name, name + dasm.LZ4Suffix} {
		path := filepath.Join(root, filepath.FromSlash(candidate))
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	return "", false
}
