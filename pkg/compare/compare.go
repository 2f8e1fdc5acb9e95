// Package compare joins two parsed listing sets (base vs diff) by file and
// method name and computes per-method and per-file metric deltas.
package compare

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dasmtools/jitdiff/pkg/dasm"
	"github.com/dasmtools/jitdiff/pkg/metric"
)

// Sentinel errors.
var (
	// ErrUnknownMetric indicates the requested metric name is not in the
	// catalog.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrAlreadyReconciled indicates Reconcile was called twice on the
	// same FileDelta. A second application would double-count the
	// one-sided methods.
	ErrAlreadyReconciled = errors.New("file delta already reconciled")
)

// MethodDelta compares one method present in both base and diff, or a
// reconciled method present on one side only (its missing side is
// all-zero). Deltas are computed eagerly at construction; the struct is
// immutable afterwards.
type MethodDelta struct {
	Name string

	Base *metric.Bundle
	Diff *metric.Bundle

	// Delta is Diff − Base over the whole catalog.
	Delta *metric.Bundle

	// RelDelta is (Diff − Base) / Base over the whole catalog. Positions
	// with zero base carry Inf or NaN.
	RelDelta *metric.Bundle

	// BaseOffsetCount and DiffOffsetCount are the physical occurrence
	// counts of the method name on each side. Differing counts flag a
	// duplicate-name collision in the report.
	BaseOffsetCount int
	DiffOffsetCount int
}

// newMethodDelta builds a delta for a matched method pair.
func newMethodDelta(name string, base, diff *metric.Bundle, baseOffsets, diffOffsets int) *MethodDelta {
	return &MethodDelta{
		Name:            name,
		Base:            base.Clone(),
		Diff:            diff.Clone(),
		Delta:           diff.Delta(base),
		RelDelta:        diff.RelDelta(base),
		BaseOffsetCount: baseOffsets,
		DiffOffsetCount: diffOffsets,
	}
}

// FileDelta compares one file present in both base and diff. Aggregates
// are sums over matched methods; Reconcile folds one-sided methods in
// afterwards.
type FileDelta struct {
	// Name is the slash-normalized relative path shared by the pair.
	Name string

	Base     *metric.Bundle
	Diff     *metric.Bundle
	Delta    *metric.Bundle
	RelDelta *metric.Bundle

	// MethodDeltas holds matched methods whose delta on the requested
	// metric is non-zero, descending by that delta. Reconcile appends the
	// synthetic one-sided entries and re-sorts.
	MethodDeltas []*MethodDelta

	// MatchedMethodCount is the number of methods present on both sides,
	// including those with zero delta.
	MatchedMethodCount int

	// MethodsOnlyInBase and MethodsOnlyInDiff hold the records unique to
	// one side, sorted by name.
	MethodsOnlyInBase []*dasm.MethodRecord
	MethodsOnlyInDiff []*dasm.MethodRecord

	// ReconciledBase and ReconciledDiff sum the metrics of the one-sided
	// methods folded in by Reconcile.
	ReconciledBase *metric.Bundle
	ReconciledDiff *metric.Bundle

	ReconciledCountBase int
	ReconciledCountDiff int

	// Retain is set by the summarizer on files ranked into a top list;
	// the optional cleanup sweep deletes pairs still unmarked.
	Retain bool

	metricIdx  int
	reconciled bool
}

// Compare joins base and diff files and produces one FileDelta per joined
// pair. Files present on one side only are not part of the result; surface
// them with UnjoinedFiles. When reconcile is true every FileDelta has its
// one-sided methods folded in.
func Compare(catalog *metric.Catalog, base, diff []*dasm.File, metricName string, reconcile bool) ([]*FileDelta, error) {
	metricIdx, _, ok := catalog.Lookup(metricName)
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownMetric, metricName, catalog.Names())
	}

	pairs := joinFiles(base, diff)

	deltas := make([]*FileDelta, 0, len(pairs))

	for _, pair := range pairs {
		fd := compareFile(catalog, pair.base, pair.diff, metricIdx)

		if reconcile {
			if err := fd.Reconcile(); err != nil {
				return nil, err
			}
		}

		deltas = append(deltas, fd)
	}

	return deltas, nil
}

type filePair struct {
	base *dasm.File
	diff *dasm.File
}

// joinFiles pairs base and diff files by normalized relative path. When
// both inputs were single explicit files the names are ignored and the two
// files pair directly, supporting ad hoc single-file comparisons.
func joinFiles(base, diff []*dasm.File) []filePair {
	if len(base) == 1 && len(diff) == 1 && base[0].IsStandalone && diff[0].IsStandalone {
		return []filePair{{base: base[0], diff: diff[0]}}
	}

	diffByKey := make(map[string]*dasm.File, len(diff))
	for _, f := range diff {
		diffByKey[joinKey(f.Name)] = f
	}

	var pairs []filePair

	for _, b := range base {
		if d, ok := diffByKey[joinKey(b.Name)]; ok {
			pairs = append(pairs, filePair{base: b, diff: d})
		}
	}

	return pairs
}

// UnjoinedFiles returns the names of files present on only one side, in
// sorted order. These files produce no FileDelta; callers surface them as
// warnings.
func UnjoinedFiles(base, diff []*dasm.File) (onlyBase, onlyDiff []string) {
	baseKeys := make(map[string]bool, len(base))
	for _, f := range base {
		baseKeys[joinKey(f.Name)] = true
	}

	diffKeys := make(map[string]bool, len(diff))
	for _, f := range diff {
		diffKeys[joinKey(f.Name)] = true
	}

	for _, f := range base {
		if !diffKeys[joinKey(f.Name)] {
			onlyBase = append(onlyBase, f.Name)
		}
	}

	for _, f := range diff {
		if !baseKeys[joinKey(f.Name)] {
			onlyDiff = append(onlyDiff, f.Name)
		}
	}

	sort.Strings(onlyBase)
	sort.Strings(onlyDiff)

	return onlyBase, onlyDiff
}

// joinKey normalizes a file name for joining: forward slashes, lower case.
// Listing sets produced on different hosts disagree on both.
func joinKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "\\", "/"))
}

// compareFile joins the methods of one file pair and aggregates.
func compareFile(catalog *metric.Catalog, base, diff *dasm.File, metricIdx int) *FileDelta {
	fd := &FileDelta{
		Name:           base.Name,
		Base:           catalog.NewBundle(),
		Diff:           catalog.NewBundle(),
		Delta:          catalog.NewBundle(),
		RelDelta:       catalog.NewBundle(),
		ReconciledBase: catalog.NewBundle(),
		ReconciledDiff: catalog.NewBundle(),
		metricIdx:      metricIdx,
	}

	for name, baseRec := range base.Methods {
		diffRec, ok := diff.Methods[name]
		if !ok {
			fd.MethodsOnlyInBase = append(fd.MethodsOnlyInBase, baseRec)

			continue
		}

		md := newMethodDelta(name, baseRec.Metrics, diffRec.Metrics,
			len(baseRec.OccurrenceOffsets), len(diffRec.OccurrenceOffsets))

		fd.MatchedMethodCount++
		fd.Base.Add(md.Base)
		fd.Diff.Add(md.Diff)
		fd.Delta.Add(md.Delta)
		fd.RelDelta.Add(md.RelDelta)

		if md.Delta.Value(metricIdx) != 0 {
			fd.MethodDeltas = append(fd.MethodDeltas, md)
		}
	}

	for name, diffRec := range diff.Methods {
		if _, ok := base.Methods[name]; !ok {
			fd.MethodsOnlyInDiff = append(fd.MethodsOnlyInDiff, diffRec)
		}
	}

	sortMethodRecords(fd.MethodsOnlyInBase)
	sortMethodRecords(fd.MethodsOnlyInDiff)
	fd.sortMethodDeltas()

	return fd
}

// Reconcile folds methods unique to one side into the comparison as if
// paired with an all-zero counterpart, so the file totals reflect
// appearance and disappearance, not just common-method drift. Calling it a
// second time is an error: it would double-count.
func (fd *FileDelta) Reconcile() error {
	if fd.reconciled {
		return fmt.Errorf("%w: %s", ErrAlreadyReconciled, fd.Name)
	}

	fd.reconciled = true

	catalog := fd.Base.Catalog()

	for _, rec := range fd.MethodsOnlyInBase {
		md := newMethodDelta(rec.Name, rec.Metrics, catalog.NewBundle(), len(rec.OccurrenceOffsets), 0)
		fd.MethodDeltas = append(fd.MethodDeltas, md)

		fd.Base.Add(rec.Metrics)
		fd.ReconciledBase.Add(rec.Metrics)
		fd.ReconciledCountBase++
	}

	for _, rec := range fd.MethodsOnlyInDiff {
		md := newMethodDelta(rec.Name, catalog.NewBundle(), rec.Metrics, 0, len(rec.OccurrenceOffsets))
		fd.MethodDeltas = append(fd.MethodDeltas, md)

		fd.Diff.Add(rec.Metrics)
		fd.ReconciledDiff.Add(rec.Metrics)
		fd.ReconciledCountDiff++
	}

	fd.Delta.Sub(fd.ReconciledBase)
	fd.Delta.Add(fd.ReconciledDiff)

	fd.sortMethodDeltas()

	return nil
}

// Reconciled reports whether Reconcile has been applied.
func (fd *FileDelta) Reconciled() bool {
	return fd.reconciled
}

// MetricIndex returns the catalog position of the metric this comparison
// was filtered and sorted by.
func (fd *FileDelta) MetricIndex() int {
	return fd.metricIdx
}

func (fd *FileDelta) sortMethodDeltas() {
	sort.SliceStable(fd.MethodDeltas, func(i, j int) bool {
		return fd.MethodDeltas[i].Delta.Value(fd.metricIdx) > fd.MethodDeltas[j].Delta.Value(fd.metricIdx)
	})
}

func sortMethodRecords(recs []*dasm.MethodRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
}
