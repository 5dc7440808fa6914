package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions are the export file types picked up by Discover.
var Extensions = []string{".srt", ".txt"}

// IsExport reports whether name has an export extension.
func IsExport(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover returns the absolute paths of the exports at path, which may be a
// file or a directory walked recursively. Hidden files and directories are
// skipped. Results are sorted.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !IsExport(path) {
			return nil, fmt.Errorf("file is not a transcript export (%s): %s",
				strings.Join(Extensions, ", "), path)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{abs}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := p != path && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !IsExport(d.Name()) {
			return nil
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
