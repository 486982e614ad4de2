package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
)

// CleanTemp deletes every file under dir, then every directory deepest
// first, and finally dir itself. It keeps going past failures; each one is
// logged and all of them are returned joined. A missing dir is not an
// error.
func CleanTemp(dir string, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	var files, dirs []string
	var errs []error
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			logger.Error("Unable to read temporary path", "path", path, "err", err)
			errs = append(errs, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		} else {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("Unable to delete temporary file", "path", f, "err", err)
			errs = append(errs, err)
		}
	}

	// Deepest first: more separators sort earlier.
	sort.SliceStable(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})
	for _, d := range dirs {
		if err := os.Remove(d); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Error("Unable to delete temporary directory", "path", d, "err", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("clean %s: %w", dir, errors.Join(errs...))
	}
	return nil
}
