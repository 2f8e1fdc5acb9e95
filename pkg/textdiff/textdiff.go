// Package textdiff counts added and removed lines between listing file
// pairs. The summarizer uses it to surface files that changed textually
// (comments, register names, whitespace) while every metric stayed flat.
package textdiff

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// lz4Suffix marks a compressed listing; contents are decompressed before
// diffing so compression artifacts never count as changes.
const lz4Suffix = ".lz4"

// Changes holds the line-level change counts for one file pair.
type Changes struct {
	// Name is the pair's relative path, filled by the caller.
	Name string

	Added   int
	Removed int
}

// Total returns the combined change magnitude used for ranking.
func (c Changes) Total() int {
	return c.Added + c.Removed
}

// Count diffs two files line-wise and returns the added and removed line
// counts. Failures to read either side are returned to the caller, which
// downgrades them to "no textual diff".
func Count(basePath, diffPath string) (Changes, error) {
	baseText, err := readText(basePath)
	if err != nil {
		return Changes{}, err
	}

	diffText, err := readText(diffPath)
	if err != nil {
		return Changes{}, err
	}

	added, removed := countLineChanges(baseText, diffText)

	return Changes{Added: added, Removed: removed}, nil
}

// countLineChanges maps each distinct line to a rune, diffs the rune
// sequences, and counts inserted and deleted runes. One rune equals one
// line.
func countLineChanges(baseText, diffText string) (added, removed int) {
	dmp := diffmatchpatch.New()

	src, dst, _ := dmp.DiffLinesToRunes(baseText, diffText)
	diffs := dmp.DiffMainRunes(src, dst, false)

	for _, edit := range diffs {
		switch edit.Type {
		case diffmatchpatch.DiffInsert:
			added += len([]rune(edit.Text))
		case diffmatchpatch.DiffDelete:
			removed += len([]rune(edit.Text))
		case diffmatchpatch.DiffEqual:
		}
	}

	return added, removed
}

func readText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, lz4Suffix) {
		r = lz4.NewReader(f)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}
