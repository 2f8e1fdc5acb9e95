package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dasmtools/jitdiff/pkg/summarize"
)

const baseListing = `; Assembly listing for method Program:Main
; Total bytes of code 120, prolog size 8, PerfScore 25.50, instruction count 40, allocated bytes for code 128
; Variable debug info: 2 live range(s), 1 var(s)

; Assembly listing for method Program:Helper
; Total bytes of code 60, prolog size 4, PerfScore 10.00, instruction count 20, allocated bytes for code 64
`

const diffListing = `; Assembly listing for method Program:Main
; Total bytes of code 100, prolog size 8, PerfScore 22.00, instruction count 36, allocated bytes for code 112
; Variable debug info: 2 live range(s), 1 var(s)

; Assembly listing for method Program:Helper
; Total bytes of code 60, prolog size 4, PerfScore 10.00, instruction count 20, allocated bytes for code 64
`

// writeTrees writes a one-file base and diff listing tree and returns
// both roots.
func writeTrees(t *testing.T, base, diff string) (string, string) {
	t.Helper()

	baseRoot, diffRoot := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseRoot, "program.dasm"), []byte(base), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(diffRoot, "program.dasm"), []byte(diff), 0o644))

	return baseRoot, diffRoot
}

// runDiff executes the diff command with the given arguments.
func runDiff(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cmd := NewDiffCommand()

	var outBuf, errBuf bytes.Buffer

	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(append(args, "--no-color"))

	err = cmd.Execute()

	return outBuf.String(), errBuf.String(), err
}

func execCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer

	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return buf.String(), err
}

func TestDiff_MissingPaths_CollectsAllProblems(t *testing.T) {
	_, _, err := runDiff(t)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadConfiguration)
	assert.Contains(t, err.Error(), "--base is required")
	assert.Contains(t, err.Error(), "--diff is required")
}

func TestDiff_UnknownMetric_ReportedBeforeIO(t *testing.T) {
	// The paths do not exist; the metric error must still surface as a
	// configuration error, not a path error.
	_, _, err := runDiff(t,
		"--base", "/does/not/exist", "--diff", "/does/not/exist",
		"--metrics", "Bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadConfiguration)
	assert.Contains(t, err.Error(), `unknown metric "Bogus"`)
	assert.Contains(t, err.Error(), "CodeSize")
}

func TestDiff_UnpairedOverride(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	_, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--override-total-base-metric", "100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overrides must be supplied together")
}

func TestDiff_MissingPathAtRuntime_ExitsZero(t *testing.T) {
	_, stderr, err := runDiff(t,
		"--base", filepath.Join(t.TempDir(), "absent"),
		"--diff", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stderr, "Error:")
	assert.Equal(t, 0, ExitCode())
}

func TestDiff_Improvement(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	stdout, _, err := runDiff(t, "--base", baseRoot, "--diff", diffRoot)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Summary of CodeSize diffs:")
	assert.Contains(t, stdout, "diff is an improvement.")
	assert.Contains(t, stdout, "Program:Main")
	assert.Equal(t, summarize.ExitDifferences, ExitCode())
}

func TestDiff_Identical_ExitsZero(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, baseListing)

	stdout, _, err := runDiff(t, "--base", baseRoot, "--diff", diffRoot)
	require.NoError(t, err)

	assert.Contains(t, stdout, "No difference found on this metric.")
	assert.Equal(t, 0, ExitCode())
}

func TestDiff_MultipleMetrics_SeparatedReports(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	stdout, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--metrics", "CodeSize,PerfScore")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Summary of CodeSize diffs:")
	assert.Contains(t, stdout, "Summary of PerfScore diffs:")
	assert.Contains(t, stdout, metricSeparator)
	assert.Equal(t, summarize.ExitDifferences, ExitCode())
}

func TestDiff_WarnReportsUnjoinedFiles(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)
	require.NoError(t, os.WriteFile(filepath.Join(baseRoot, "extra.dasm"), []byte(baseListing), 0o644))

	stdout, _, err := runDiff(t, "--base", baseRoot, "--diff", diffRoot, "--warn")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Warning: extra.dasm present only in base.")
}

func TestDiff_OutputFiles(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)
	outDir := t.TempDir()

	jsonPath := filepath.Join(outDir, "report.json")
	tsvPath := filepath.Join(outDir, "report.tsv")
	mdPath := filepath.Join(outDir, "report.md")
	htmlPath := filepath.Join(outDir, "report.html")

	_, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--json", jsonPath, "--tsv", tsvPath, "--md", mdPath, "--html", htmlPath)
	require.NoError(t, err)

	jsonData, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(jsonData, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "program.dasm", entries[0]["name"])

	tsvData, err := os.ReadFile(tsvPath)
	require.NoError(t, err)

	tsvLines := strings.Split(strings.TrimRight(string(tsvData), "\n"), "\n")
	require.NotEmpty(t, tsvLines)
	assert.Contains(t, tsvLines[0], "CodeSize Base")

	mdData, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(mdData), "<summary>CodeSize diffs</summary>")

	htmlData, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(htmlData), "<html")
}

func TestDiff_RetainOnlyTopFiles_SweepsAfterReporting(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	flat := "; Assembly listing for method Flat:M\n" +
		"; Total bytes of code 10, prolog size 2, PerfScore 1.00, instruction count 4, allocated bytes for code 16\n"
	require.NoError(t, os.WriteFile(filepath.Join(baseRoot, "flat.dasm"), []byte(flat), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(diffRoot, "flat.dasm"), []byte(flat), 0o644))

	stdout, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--retain-only-top-files", "--skip-text-diff")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Deleted 1 unretained listing pair(s).")
	assert.FileExists(t, filepath.Join(baseRoot, "program.dasm"))
	assert.NoFileExists(t, filepath.Join(baseRoot, "flat.dasm"))
	assert.NoFileExists(t, filepath.Join(diffRoot, "flat.dasm"))
}

func TestDiff_RetainMarksSurviveAcrossMetricPasses(t *testing.T) {
	// a.dasm moves only on CodeSize, b.dasm only on PerfScore. Each is a
	// top file in exactly one metric pass; neither pair may be swept.
	baseRoot, diffRoot := t.TempDir(), t.TempDir()

	write := func(root, name, code, alloc, score string) {
		listing := "; Assembly listing for method M\n" +
			"; Total bytes of code " + code + ", prolog size 4, PerfScore " + score +
			", instruction count 10, allocated bytes for code " + alloc + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(listing), 0o644))
	}

	write(baseRoot, "a.dasm", "100", "112", "5.00")
	write(diffRoot, "a.dasm", "80", "112", "5.00")
	write(baseRoot, "b.dasm", "50", "64", "9.00")
	write(diffRoot, "b.dasm", "50", "64", "6.00")
	write(baseRoot, "c.dasm", "30", "32", "2.00")
	write(diffRoot, "c.dasm", "30", "32", "2.00")

	stdout, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--metrics", "CodeSize,PerfScore",
		"--retain-only-top-files", "--skip-text-diff")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Deleted 1 unretained listing pair(s).")
	assert.FileExists(t, filepath.Join(baseRoot, "a.dasm"))
	assert.FileExists(t, filepath.Join(diffRoot, "a.dasm"))
	assert.FileExists(t, filepath.Join(baseRoot, "b.dasm"))
	assert.FileExists(t, filepath.Join(diffRoot, "b.dasm"))
	assert.NoFileExists(t, filepath.Join(baseRoot, "c.dasm"))
	assert.NoFileExists(t, filepath.Join(diffRoot, "c.dasm"))
}

func TestDiff_NoteAndFilterAnnotations(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	stdout, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot,
		"--note", "nightly run", "--filter", "System.*")
	require.NoError(t, err)

	assert.Contains(t, stdout, "nightly run")
	assert.Contains(t, stdout, "System.*")
}

func TestDiff_CountZero_DisablesRankedSections(t *testing.T) {
	baseRoot, diffRoot := writeTrees(t, baseListing, diffListing)

	stdout, _, err := runDiff(t,
		"--base", baseRoot, "--diff", diffRoot, "--count", "0")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Summary of CodeSize diffs:")
	assert.NotContains(t, stdout, "Program:Main")
}

func TestMetricsCommand_PrintsCatalog(t *testing.T) {
	out, err := execCmd(t, NewMetricsCommand())
	require.NoError(t, err)

	assert.Contains(t, out, "CodeSize")
	assert.Contains(t, out, "ResolutionWeight")
	assert.Contains(t, out, "PerfScoreUnit")
}

func TestMCPCommand_HasDebugFlag(t *testing.T) {
	cmd := NewMCPCommand()
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
}
