// Package metric defines the fixed catalog of compiled-method metrics and
// the dense per-method value bundle used throughout comparison and reporting.
//
// The catalog is built once at process start and passed explicitly to every
// component that needs it. A Bundle is a dense array indexed by catalog
// position, so whole-bundle arithmetic is a single linear pass.
package metric

import (
	"strings"
)

// Catalog metric names. These are the stable identifiers accepted by the
// --metrics flag and emitted in TSV/JSON output.
const (
	CodeSize         = "CodeSize"
	PrologSize       = "PrologSize"
	PerfScore        = "PerfScore"
	InstrCount       = "InstrCount"
	AllocSize        = "AllocSize"
	ExtraAllocBytes  = "ExtraAllocBytes"
	DebugClauseCount = "DebugClauseCount"
	DebugVarCount    = "DebugVarCount"
	SpillCount       = "SpillCount"
	SpillWeight      = "SpillWeight"
	ResolutionCount  = "ResolutionCount"
	ResolutionWeight = "ResolutionWeight"
)

// Descriptor holds the immutable metadata for one catalog entry.
type Descriptor struct {
	// Name is the machine-readable identifier (stable, unique).
	Name string

	// DisplayName is the human-readable name used in report headers.
	DisplayName string

	// Unit names what one count of this metric measures.
	Unit string

	// LowerIsBetter reports the polarity: a negative delta is an
	// improvement when true.
	LowerIsBetter bool
}

// Catalog is the fixed, ordered set of metric descriptors. The set and
// order never change for the lifetime of the process, so bundle positions
// are stable across every component.
type Catalog struct {
	entries []Descriptor
	index   map[string]int
}

// NewCatalog builds the process-wide metric catalog. Every metric in this
// domain is lower-is-better.
func NewCatalog() *Catalog {
	entries := []Descriptor{
		{Name: CodeSize, DisplayName: "Code bytes", Unit: "byte", LowerIsBetter: true},
		{Name: PrologSize, DisplayName: "Prolog bytes", Unit: "byte", LowerIsBetter: true},
		{Name: PerfScore, DisplayName: "Perf score", Unit: "PerfScoreUnit", LowerIsBetter: true},
		{Name: InstrCount, DisplayName: "Instruction count", Unit: "instruction", LowerIsBetter: true},
		{Name: AllocSize, DisplayName: "Allocated bytes", Unit: "byte", LowerIsBetter: true},
		{Name: ExtraAllocBytes, DisplayName: "Extra allocated bytes", Unit: "byte", LowerIsBetter: true},
		{Name: DebugClauseCount, DisplayName: "Debug clause count", Unit: "clause", LowerIsBetter: true},
		{Name: DebugVarCount, DisplayName: "Debug variable count", Unit: "variable", LowerIsBetter: true},
		{Name: SpillCount, DisplayName: "Spill count", Unit: "count", LowerIsBetter: true},
		{Name: SpillWeight, DisplayName: "Spill weighted", Unit: "count", LowerIsBetter: true},
		{Name: ResolutionCount, DisplayName: "Resolution count", Unit: "count", LowerIsBetter: true},
		{Name: ResolutionWeight, DisplayName: "Resolution weighted", Unit: "count", LowerIsBetter: true},
	}

	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Name] = i
	}

	return &Catalog{entries: entries, index: index}
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Descriptors returns the catalog entries in order. Callers must not
// modify the returned slice.
func (c *Catalog) Descriptors() []Descriptor {
	return c.entries
}

// At returns the descriptor at catalog position i.
func (c *Catalog) At(i int) Descriptor {
	return c.entries[i]
}

// Lookup returns the catalog position and descriptor for the given metric
// name. The boolean is false when the name is not in the catalog.
func (c *Catalog) Lookup(name string) (int, Descriptor, bool) {
	i, ok := c.index[name]
	if !ok {
		return 0, Descriptor{}, false
	}

	return i, c.entries[i], true
}

// Names returns the comma-joined catalog names, for CLI help text and
// validation error messages.
func (c *Catalog) Names() string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}

	return strings.Join(names, ", ")
}

// Bundle holds one value per catalog entry, in catalog order. A Bundle is
// owned by exactly one method record or aggregate; use Clone before
// accumulating into a shared sum.
type Bundle struct {
	catalog *Catalog
	values  []float64
}

// NewBundle creates an all-zero bundle over the catalog.
func (c *Catalog) NewBundle() *Bundle {
	return &Bundle{catalog: c, values: make([]float64, len(c.entries))}
}

// Catalog returns the catalog this bundle is indexed by.
func (b *Bundle) Catalog() *Catalog {
	return b.catalog
}

// Clone returns a deep copy. Mutating the copy never affects the original.
func (b *Bundle) Clone() *Bundle {
	values := make([]float64, len(b.values))
	copy(values, b.values)

	return &Bundle{catalog: b.catalog, values: values}
}

// Value returns the value at catalog position i.
func (b *Bundle) Value(i int) float64 {
	return b.values[i]
}

// SetValue stores v at catalog position i.
func (b *Bundle) SetValue(i int, v float64) {
	b.values[i] = v
}

// AddValue adds v to the value at catalog position i.
func (b *Bundle) AddValue(i int, v float64) {
	b.values[i] += v
}

// Get returns the value for the named metric. The boolean is false when
// the name is not in the catalog.
func (b *Bundle) Get(name string) (float64, bool) {
	i, ok := b.catalog.index[name]
	if !ok {
		return 0, false
	}

	return b.values[i], true
}

// Add adds other into b element-wise.
func (b *Bundle) Add(other *Bundle) {
	for i, v := range other.values {
		b.values[i] += v
	}
}

// Sub subtracts other from b element-wise.
func (b *Bundle) Sub(other *Bundle) {
	for i, v := range other.values {
		b.values[i] -= v
	}
}

// Delta returns a new bundle holding b − base element-wise.
func (b *Bundle) Delta(base *Bundle) *Bundle {
	out := b.Clone()
	out.Sub(base)

	return out
}

// RelDelta returns a new bundle holding (b − base) / base element-wise.
// Positions where base is zero yield Inf or NaN, matching IEEE division;
// callers that cannot tolerate that must check the base first.
func (b *Bundle) RelDelta(base *Bundle) *Bundle {
	out := b.catalog.NewBundle()
	for i := range b.values {
		out.values[i] = (b.values[i] - base.values[i]) / base.values[i]
	}

	return out
}

// IsZero reports whether every value is exactly zero.
func (b *Bundle) IsZero() bool {
	for _, v := range b.values {
		if v != 0 {
			return false
		}
	}

	return true
}
