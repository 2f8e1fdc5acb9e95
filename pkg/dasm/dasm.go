// Package dasm parses JIT disassembly listing files into per-method metric
// records.
//
// A listing file is plain text. A method's section starts with a line
// beginning with "; Assembly listing for method <name>"; metric values
// appear in sibling comment lines. A method's data may be split across
// repeated emission blocks with the same name; values are summed per name.
package dasm

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"

	"github.com/dasmtools/jitdiff/pkg/metric"
)

// BeginMarker introduces a method section in a listing file.
const BeginMarker = "; Assembly listing for method "

// LZ4Suffix marks a listing file stored LZ4-frame-compressed.
const LZ4Suffix = ".lz4"

// scanBufferSize caps the line length accepted by the scanner. Listing
// lines for heavily-inlined generic methods can run long.
const scanBufferSize = 1 << 20

// MethodRecord holds one compiled method's summed observations within one
// listing file.
type MethodRecord struct {
	// Name is the fully qualified signature string used as the join key.
	// Generic instantiations can textually collide, so the name is not
	// guaranteed unique; OccurrenceOffsets surfaces that.
	Name string

	// Metrics holds the summed metric values over all emission blocks
	// bearing this name.
	Metrics *metric.Bundle

	// OccurrenceOffsets holds the zero-based line indices of every begin
	// marker for this name, in file order.
	OccurrenceOffsets []int
}

// File holds the parsed methods of one listing file.
type File struct {
	// Name is the slash-normalized path relative to the parse root.
	Name string

	// Methods maps method name to its record.
	Methods map[string]*MethodRecord

	// IsStandalone is true when the input path was a single explicit file
	// rather than a directory. Standalone base and diff files are paired
	// directly, ignoring names.
	IsStandalone bool
}

// fieldKind selects how a captured string is parsed.
type fieldKind int

const (
	fieldInt fieldKind = iota
	fieldFloat
)

// pattern maps one regular expression to the catalog positions its capture
// groups feed. A pattern that does not match a line contributes nothing;
// absent data stays zero. Older listing formats lack newer metrics (perf
// score, spill stats), and those files must still parse.
type pattern struct {
	re     *regexp.Regexp
	fields []patternField
}

type patternField struct {
	metricName string
	kind       fieldKind
}

var linePatterns = []pattern{
	{
		re: regexp.MustCompile(`code (\d+), prolog size (\d+)`),
		fields: []patternField{
			{metric.CodeSize, fieldInt},
			{metric.PrologSize, fieldInt},
		},
	},
	{
		// Two historical label spellings.
		re:     regexp.MustCompile(`(?:PerfScore|perf score) (\d+(?:\.\d+)?)`),
		fields: []patternField{{metric.PerfScore, fieldFloat}},
	},
	{
		re:     regexp.MustCompile(`instruction count (\d+)`),
		fields: []patternField{{metric.InstrCount, fieldInt}},
	},
	{
		re:     regexp.MustCompile(`allocated bytes for code (\d+)`),
		fields: []patternField{{metric.AllocSize, fieldInt}},
	},
	{
		re: regexp.MustCompile(`Variable debug info: (\d+) live range\(s\), (\d+) var\(s\)`),
		fields: []patternField{
			{metric.DebugClauseCount, fieldInt},
			{metric.DebugVarCount, fieldInt},
		},
	},
	{
		re: regexp.MustCompile(`SpillCount (\d+) SpillCountWt (\d+(?:\.\d+)?)`),
		fields: []patternField{
			{metric.SpillCount, fieldInt},
			{metric.SpillWeight, fieldFloat},
		},
	},
	{
		re: regexp.MustCompile(`ResolutionMovs (\d+) ResolutionMovsWt (\d+(?:\.\d+)?)`),
		fields: []patternField{
			{metric.ResolutionCount, fieldInt},
			{metric.ResolutionWeight, fieldFloat},
		},
	},
}

// Parser extracts method records from listing files. It is safe for
// concurrent use; each parse owns its own state.
type Parser struct {
	catalog *metric.Catalog
	log     *slog.Logger

	// Catalog positions resolved once at construction.
	positions map[string]int
	codeIdx   int
	allocIdx  int
	extraIdx  int
}

// NewParser creates a parser over the given catalog.
func NewParser(catalog *metric.Catalog, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}

	positions := make(map[string]int, catalog.Len())
	for i, d := range catalog.Descriptors() {
		positions[d.Name] = i
	}

	return &Parser{
		catalog:   catalog,
		log:       logger,
		positions: positions,
		codeIdx:   positions[metric.CodeSize],
		allocIdx:  positions[metric.AllocSize],
		extraIdx:  positions[metric.ExtraAllocBytes],
	}
}

// ParseFile reads and parses one listing file. Files ending in ".lz4" are
// decompressed transparently. The record name stored in the result is
// name, not path.
func (p *Parser) ParseFile(path, name string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open listing %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, LZ4Suffix) {
		r = lz4.NewReader(f)
	}

	parsed, err := p.Parse(r, name)
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", path, err)
	}

	return parsed, nil
}

// Parse scans the listing text once, linearly, grouping metric lines under
// the most recent begin marker. A reader with no markers yields a File
// with zero methods, not an error.
func (p *Parser) Parse(r io.Reader, name string) (*File, error) {
	file := &File{
		Name:    strings.ReplaceAll(name, "\\", "/"),
		Methods: make(map[string]*MethodRecord),
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), scanBufferSize)

	var current *MethodRecord

	lineNo := -1

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// Every marker line is a comment line.
		if !strings.HasPrefix(line, ";") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, BeginMarker); ok {
			current = p.methodFor(file, methodName(rest))
			current.OccurrenceOffsets = append(current.OccurrenceOffsets, lineNo)

			continue
		}

		if current == nil {
			continue
		}

		p.applyPatterns(current.Metrics, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	p.finalize(file)

	return file, nil
}

// methodFor returns the record for name, creating it on first sight.
func (p *Parser) methodFor(file *File, name string) *MethodRecord {
	if rec, ok := file.Methods[name]; ok {
		return rec
	}

	rec := &MethodRecord{Name: name, Metrics: p.catalog.NewBundle()}
	file.Methods[name] = rec

	return rec
}

// applyPatterns runs every metric pattern against the line independently
// and accumulates whatever matched.
func (p *Parser) applyPatterns(bundle *metric.Bundle, line string) {
	for _, pat := range linePatterns {
		m := pat.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		for gi, field := range pat.fields {
			v, err := parseField(m[gi+1], field.kind)
			if err != nil {
				// Capture groups only admit digits; unreachable in
				// practice but absent data defaults to zero anyway.
				continue
			}

			bundle.AddValue(p.positions[field.metricName], v)
		}
	}
}

// finalize computes derived metrics for every method in the file.
// ExtraAllocBytes = AllocSize − CodeSize; code never exceeds its
// allocation, so a negative result means the parser or the input is
// broken. Listings old enough to omit the allocated-bytes line report
// zero extra bytes rather than a bogus negative value.
func (p *Parser) finalize(file *File) {
	for _, rec := range file.Methods {
		code := rec.Metrics.Value(p.codeIdx)
		alloc := rec.Metrics.Value(p.allocIdx)

		if alloc == 0 {
			continue
		}

		if code > alloc {
			p.log.Warn("code bytes exceed allocated bytes",
				"file", file.Name, "method", rec.Name,
				"code", code, "alloc", alloc)
		}

		rec.Metrics.SetValue(p.extraIdx, alloc-code)
	}
}

// methodName trims trailing annotations from a begin-marker capture. The
// emitter appends flags after the signature on some configurations.
func methodName(rest string) string {
	return strings.TrimSpace(rest)
}

func parseField(s string, kind fieldKind) (float64, error) {
	if kind == fieldInt {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse int field: %w", err)
		}

		return float64(n), nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float field: %w", err)
	}

	return v, nil
}
