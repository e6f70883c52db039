package cursorcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CursorExtensions lists the file extensions recognised as cursor files.
var CursorExtensions = []string{".cur", ".ico", ".ani"}

// IsCursorPath reports whether path has a recognised cursor extension.
func IsCursorPath(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range CursorExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// ScanLibrary walks root and returns a descriptor for every cursor file found,
// sorted by path. Hidden files and directories are skipped. A missing root
// yields an empty result.
func ScanLibrary(root string) ([]Descriptor, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// A single file is a library of one.
	if !info.IsDir() {
		if !IsCursorPath(absRoot) {
			return nil, nil
		}
		return []Descriptor{FileCursor(absRoot)}, nil
	}

	var paths []string
	err = filepath.WalkDir(absRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != absRoot && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsCursorPath(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Strings(paths)
	out := make([]Descriptor, len(paths))
	for i, p := range paths {
		out[i] = FileCursor(p)
	}
	return out, nil
}
