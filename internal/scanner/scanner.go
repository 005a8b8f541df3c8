// Package scanner discovers source files and filters out generated
// code, first by path rules during traversal, then by inspecting file
// headers for generated-code markers.
package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	srcerrors "github.com/dkallur/srcindex/internal/errors"
)

// Config controls file discovery.
type Config struct {
	// Extension is the file extension to collect, including the dot.
	Extension string
	// ExcludedDirs are directory names pruned during traversal.
	ExcludedDirs []string
	// GeneratedSuffixes exclude files by name alone, without file I/O.
	GeneratedSuffixes []string
}

// Scanner walks directory trees collecting source files.
type Scanner struct {
	cfg          Config
	excludedDirs map[string]struct{}
	logger       *slog.Logger
}

// New creates a Scanner. A nil logger uses the default.
func New(cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedDirs))
	for _, d := range cfg.ExcludedDirs {
		excluded[strings.ToLower(d)] = struct{}{}
	}
	return &Scanner{cfg: cfg, excludedDirs: excluded, logger: logger}
}

// Scan walks root and returns matching file paths in traversal order.
// Excluded directories are pruned so their subtrees are never visited.
// Returns a path error if root does not exist or is not a directory.
func (s *Scanner) Scan(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, srcerrors.PathError(root, err)
	}
	if !info.IsDir() {
		return nil, srcerrors.PathError(root, nil).WithDetail("reason", "not a directory")
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			// Unreadable entries are logged and skipped, never fatal.
			s.logger.Warn("scan entry error",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && s.isExcludedDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if !strings.HasSuffix(strings.ToLower(name), strings.ToLower(s.cfg.Extension)) {
			return nil
		}
		if s.IsGeneratedPath(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// IsGeneratedPath reports whether a path is excluded by name alone:
// either the filename carries a generated suffix or some directory
// segment is an excluded directory. No file content is read.
func (s *Scanner) IsGeneratedPath(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range s.cfg.GeneratedSuffixes {
		if strings.HasSuffix(name, strings.ToLower(suffix)) {
			return true
		}
	}

	dir := filepath.Dir(path)
	for _, segment := range strings.Split(dir, string(filepath.Separator)) {
		if s.isExcludedDir(segment) {
			return true
		}
	}
	return false
}

// IsExcludedDir reports whether a directory name is pruned during
// traversal.
func (s *Scanner) IsExcludedDir(name string) bool {
	return s.isExcludedDir(name)
}

// Extension returns the file extension this scanner collects.
func (s *Scanner) Extension() string {
	return s.cfg.Extension
}

func (s *Scanner) isExcludedDir(name string) bool {
	_, ok := s.excludedDirs[strings.ToLower(name)]
	return ok
}
