package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dasmtools/jitdiff/pkg/compare"
	"github.com/dasmtools/jitdiff/pkg/summarize"
)

// newLogger builds the command logger. Verbose switches the level to
// Debug; the format follows the logging configuration.
func newLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// outputFiles accumulates the optional report channels across metric
// passes and flushes them once at the end of the run.
type outputFiles struct {
	tsvFile   *os.File
	tsvWriter *summarize.TSVWriter

	jsonFile *os.File
	export   *summarize.Export

	mdFile *os.File

	htmlFile *os.File
	html     *summarize.HTMLReport
}

func (dc *DiffCommand) openOutputs() (*outputFiles, error) {
	o := &outputFiles{}

	open := func(path string) (*os.File, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}

		return f, nil
	}

	var err error

	if dc.tsvPath != "" {
		if o.tsvFile, err = open(dc.tsvPath); err != nil {
			return nil, err
		}

		o.tsvWriter = summarize.NewTSVWriter(dc.catalog, o.tsvFile)
	}

	if dc.jsonPath != "" {
		if o.jsonFile, err = open(dc.jsonPath); err != nil {
			return nil, err
		}

		o.export = summarize.NewExport(dc.catalog)
	}

	if dc.mdPath != "" {
		if o.mdFile, err = open(dc.mdPath); err != nil {
			return nil, err
		}
	}

	if dc.htmlPath != "" {
		if o.htmlFile, err = open(dc.htmlPath); err != nil {
			return nil, err
		}

		o.html = summarize.NewHTMLReport("jitdiff report")
	}

	return o, nil
}

// accumulate folds one metric pass into every open channel.
func (o *outputFiles) accumulate(
	dc *DiffCommand,
	summarizer *summarize.Summarizer,
	metricName string,
	deltas []*compare.FileDelta,
	res *summarize.Result,
) {
	if o.tsvWriter != nil {
		if err := o.tsvWriter.Append(deltas); err != nil {
			dc.log.Warn("tsv append failed", "error", err)
		}
	}

	if o.export != nil {
		o.export.Add(metricName, deltas)
	}

	if o.mdFile != nil {
		summary := fmt.Sprintf("%s diffs", metricName)
		if err := summarize.WriteMarkdown(o.mdFile, summary, res.Text); err != nil {
			dc.log.Warn("markdown write failed", "error", err)
		}
	}

	if o.html != nil {
		o.html.Add(summarizer, deltas, metricName, dc.count)
	}
}

// flush writes the deferred channels.
func (o *outputFiles) flush(dc *DiffCommand) error {
	if o.export != nil {
		if err := o.export.WriteJSON(o.jsonFile); err != nil {
			return err
		}
	}

	if o.html != nil && !o.html.Empty() {
		if err := o.html.Write(o.htmlFile); err != nil {
			return err
		}
	}

	return nil
}

func (o *outputFiles) close(logger *slog.Logger) {
	for _, f := range []*os.File{o.tsvFile, o.jsonFile, o.mdFile, o.htmlFile} {
		if f == nil {
			continue
		}

		if err := f.Close(); err != nil {
			logger.Warn("close output", "path", f.Name(), "error", err)
		}
	}
}
