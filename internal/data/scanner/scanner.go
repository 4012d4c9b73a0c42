package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/penwyp/go-chat-recap/internal/util"
)

// DefaultExtensions are the file suffixes picked up when scanning a directory.
var DefaultExtensions = []string{".json"}

// FileScanner resolves CLI inputs into export files. Files are taken as given;
// directories are walked for files with a matching extension.
type FileScanner struct {
	extensions []string
}

// NewFileScanner creates a FileScanner. With no extensions the defaults apply.
func NewFileScanner(extensions ...string) *FileScanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	lower := make([]string, len(extensions))
	for i, ext := range extensions {
		lower[i] = strings.ToLower(ext)
	}
	return &FileScanner{extensions: lower}
}

// Scan expands paths in order, dropping duplicates. A path that does not
// exist is an error; an unreadable entry inside a directory is skipped.
func (s *FileScanner) Scan(paths []string) ([]string, error) {
	start := time.Now()
	seen := make(map[string]struct{})
	var files []string

	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		files = append(files, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		found, err := s.scanDir(path)
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			util.LogWarn("No export files found in directory", util.F("dir", path))
		}
		for _, f := range found {
			add(f)
		}
	}

	util.LogDebug("File scan completed",
		util.F("inputs", len(paths)), util.F("files", len(files)), util.F("duration", util.FormatDuration(time.Since(start))))
	return files, nil
}

func (s *FileScanner) scanDir(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			util.LogDebug("Skip file (error)", util.F("path", path), util.F("error", err.Error()))
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.matches(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func (s *FileScanner) matches(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range s.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
