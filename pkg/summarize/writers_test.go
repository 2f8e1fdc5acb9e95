package summarize_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/dasm"
	"github.com/dasmtools/jitdiff/pkg/metric"
	"github.com/dasmtools/jitdiff/pkg/summarize"
)

// reportSchema pins the shape of the JSON export.
const reportSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["metric", "name", "base", "diff", "delta", "relativeDelta", "methods"],
    "properties": {
      "metric": {"type": "string"},
      "name": {"type": "string"},
      "base": {"type": "object", "additionalProperties": {"type": "number"}},
      "diff": {"type": "object", "additionalProperties": {"type": "number"}},
      "delta": {"type": "object", "additionalProperties": {"type": "number"}},
      "relativeDelta": {"type": "object", "additionalProperties": {"type": "number"}},
      "reconciledCountBase": {"type": "integer"},
      "reconciledCountDiff": {"type": "integer"},
      "methodsOnlyInBase": {"type": "array", "items": {"type": "string"}},
      "methodsOnlyInDiff": {"type": "array", "items": {"type": "string"}},
      "methods": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["name", "base", "diff", "delta"],
          "properties": {
            "name": {"type": "string"},
            "baseOffsetCount": {"type": "integer"},
            "diffOffsetCount": {"type": "integer"}
          }
        }
      }
    }
  }
}`

func changedDeltas(t *testing.T, catalog *metric.Catalog) []*compare.FileDelta {
	t.Helper()

	base := []*dasm.File{
		makeFile(catalog, "changed.dasm", map[string]float64{"M": 100, "Gone": 10}),
		makeFile(catalog, "flat.dasm", map[string]float64{"N": 10}),
	}
	diff := []*dasm.File{
		makeFile(catalog, "changed.dasm", map[string]float64{"M": 80, "New": 5}),
		makeFile(catalog, "flat.dasm", map[string]float64{"N": 10}),
	}

	return compareSets(t, catalog, base, diff)
}

func TestTSVWriter(t *testing.T) {
	t.Parallel()

	catalog := metric.NewCatalog()

	var buf bytes.Buffer

	tsv := summarize.NewTSVWriter(catalog, &buf)
	require.NoError(t, tsv.Append(changedDeltas(t, catalog)))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// Header + three method deltas (M, Gone, New).
	require.Len(t, lines, 4)

	header := strings.Split(lines[0], "\t")
	// File, Method, then Base/Diff/Delta/Percentage per catalog metric.
	assert.Len(t, header, 2+4*catalog.Len())
	assert.Equal(t, "CodeSize Base", header[2])
	assert.Equal(t, "CodeSize Percentage", header[5])

	for _, line := range lines[1:] {
		assert.Len(t, strings.Split(line, "\t"), 2+4*catalog.Len())
	}

	// Appending a second pass reuses the header.
	require.NoError(t, tsv.Append(changedDeltas(t, catalog)))
	lines = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 7)
}

func TestExport_OnlyNonZeroDeltas(t *testing.T) {
	t.Parallel()

	catalog := metric.NewCatalog()

	export := summarize.NewExport(catalog)
	export.Add(metric.CodeSize, changedDeltas(t, catalog))

	// flat.dasm has zero delta and is excluded.
	assert.Equal(t, 1, export.Len())
}

func TestExport_JSONMatchesSchema(t *testing.T) {
	t.Parallel()

	catalog := metric.NewCatalog()

	export := summarize.NewExport(catalog)
	export.Add(metric.CodeSize, changedDeltas(t, catalog))

	var buf bytes.Buffer
	require.NoError(t, export.WriteJSON(&buf))

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(reportSchema),
		gojsonschema.NewBytesLoader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, result.Valid(), "schema errors: %v", result.Errors())

	assert.Contains(t, buf.String(), `"methodsOnlyInBase"`)
	assert.Contains(t, buf.String(), `"Gone"`)
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	require.NoError(t, summarize.WriteMarkdown(&buf, "CodeSize report", "total delta: -20"))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<details>\n<summary>CodeSize report</summary>"))
	assert.Contains(t, out, "```\ntotal delta: -20\n```")
	assert.True(t, strings.HasSuffix(out, "</details>\n"))
}

func TestSweep_DeletesUnretainedPairs(t *testing.T) {
	t.Parallel()

	catalog := metric.NewCatalog()
	s := summarize.New(catalog, nil)

	const changedListing = `; Assembly listing for method M
; Total bytes of code 100, prolog size 2, PerfScore 1.00, instruction count 3, allocated bytes for code 112
`

	const changedListing2 = `; Assembly listing for method M
; Total bytes of code 80, prolog size 2, PerfScore 1.00, instruction count 3, allocated bytes for code 96
`

	const flatListing = `; Assembly listing for method N
; Total bytes of code 10, prolog size 2, PerfScore 1.00, instruction count 3, allocated bytes for code 16
`

	baseRoot, diffRoot := t.TempDir(), t.TempDir()
	for _, root := range []string{baseRoot, diffRoot} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "flat.dasm"), []byte(flatListing), 0o644))
	}

	require.NoError(t, os.WriteFile(filepath.Join(baseRoot, "changed.dasm"), []byte(changedListing), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(diffRoot, "changed.dasm"), []byte(changedListing2), 0o644))

	parser := dasm.NewParser(catalog, nil)

	baseFiles, err := parser.ParseTree(baseRoot, dasm.TreeOptions{})
	require.NoError(t, err)

	diffFiles, err := parser.ParseTree(diffRoot, dasm.TreeOptions{})
	require.NoError(t, err)

	deltas := compareSets(t, catalog, baseFiles, diffFiles)

	opts := defaultOpts()
	opts.RetainOnlyTopFiles = true
	opts.BaseRoot = baseRoot
	opts.DiffRoot = diffRoot
	opts.SkipTextDiff = true

	_, err = s.Summarize(deltas, metric.CodeSize, opts)
	require.NoError(t, err)

	deleted := summarize.Sweep(deltas, baseRoot, diffRoot, nil)
	assert.Equal(t, 1, deleted)

	// The changed pair survives; the flat pair is gone.
	assert.FileExists(t, filepath.Join(baseRoot, "changed.dasm"))
	assert.FileExists(t, filepath.Join(diffRoot, "changed.dasm"))
	assert.NoFileExists(t, filepath.Join(baseRoot, "flat.dasm"))
	assert.NoFileExists(t, filepath.Join(diffRoot, "flat.dasm"))
}
