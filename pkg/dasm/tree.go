package dasm

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// DefaultExtension is the listing file extension matched when none is
// configured.
const DefaultExtension = ".dasm"

// TreeOptions controls directory enumeration and parse parallelism.
type TreeOptions struct {
	// Recursive walks subdirectories; otherwise only the top level is
	// enumerated.
	Recursive bool

	// Extension filters listing files (default ".dasm"). A file matching
	// extension+".lz4" is also accepted and decompressed.
	Extension string

	// Workers bounds parse parallelism. Zero or negative means
	// runtime.NumCPU().
	Workers int
}

// ParseTree parses every listing under root. When root is a single file,
// the result is one File marked standalone. Per-file parse failures are
// logged and the file is skipped; a missing root is an error.
func (p *Parser) ParseTree(root string, opts TreeOptions) ([]*File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		file, parseErr := p.ParseFile(root, filepath.Base(root))
		if parseErr != nil {
			return nil, parseErr
		}

		file.IsStandalone = true

		return []*File{file}, nil
	}

	paths, err := ListFiles(root, opts)
	if err != nil {
		return nil, err
	}

	return p.parseAll(root, paths, opts.Workers), nil
}

// parseAll fans the file list out over a bounded worker pool. Each worker
// writes into its own result slot, so no locking is needed; failed files
// leave nil slots that are dropped afterwards.
func (p *Parser) parseAll(root string, paths []string, workers int) []*File {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if workers > len(paths) {
		workers = len(paths)
	}

	results := make([]*File, len(paths))
	indices := make(chan int)

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indices {
				rel := paths[i]

				file, err := p.ParseFile(filepath.Join(root, rel), rel)
				if err != nil {
					p.log.Warn("skipping unreadable listing", "path", rel, "error", err)

					continue
				}

				results[i] = file
			}
		}()
	}

	for i := range paths {
		indices <- i
	}

	close(indices)
	wg.Wait()

	files := make([]*File, 0, len(results))

	for _, f := range results {
		if f != nil {
			files = append(files, f)
		}
	}

	return files
}

// ListFiles enumerates listing files under root, returning paths relative
// to root in sorted order.
func ListFiles(root string, opts TreeOptions) ([]string, error) {
	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	var paths []string

	if opts.Recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}

			if d.IsDir() || !matchesExtension(d.Name(), ext) {
				return nil
			}

			rel, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return relErr
			}

			paths = append(paths, rel)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", root, err)
		}

		for _, e := range entries {
			if !e.IsDir() && matchesExtension(e.Name(), ext) {
				paths = append(paths, e.Name())
			}
		}
	}

	sort.Strings(paths)

	return paths, nil
}

func matchesExtension(name, ext string) bool {
	return strings.HasSuffix(name, ext) || strings.HasSuffix(name, ext+LZ4Suffix)
}
