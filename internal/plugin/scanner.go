package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dshills/snippetide/internal/event/events"
)

// Diagnostic records one file the scanner could not load.
type Diagnostic struct {
	Path string
	Err  error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Path, d.Err)
}

// Report is the outcome of a scan.
type Report struct {
	// Loaded counts the plugins loaded by the scan.
	Loaded int

	// Diagnostics lists the files that failed, in walk order.
	Diagnostics []Diagnostic

	// WalkErr is set when the directory itself could not be walked.
	WalkErr error
}

// Scanner loads every plugin file under a directory.
type Scanner struct {
	manager *Manager
	logger  *log.Logger
}

// NewScanner creates a Scanner loading into manager.
func NewScanner(manager *Manager, logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.Default()
	}
	return &Scanner{manager: manager, logger: logger.WithPrefix("plugin")}
}

// Scan walks dir and tries to load every file, one file at a time. Hidden
// files and directories are skipped. A file that fails, including one no
// factory can load, is logged, published as plugin.failed and recorded as
// a diagnostic. If dir cannot be walked the failure is logged and the report
// counts zero plugins.
func (s *Scanner) Scan(ctx context.Context, dir string) Report {
	var report Report

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			s.fail(ctx, &report, path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			s.logger.Debug("Skipping hidden file", "path", path)
			return nil
		}

		if _, err := s.LoadFile(ctx, path); err != nil {
			report.Diagnostics = append(report.Diagnostics, Diagnostic{Path: path, Err: err})
			return nil
		}
		report.Loaded++
		return nil
	})

	if err != nil {
		report.WalkErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("Plugin scan cancelled", "dir", dir, "loaded", report.Loaded)
			return report
		}
		s.logger.Error("Unable to scan plugin directory", "dir", dir, "err", err)
		report.Loaded = 0
		return report
	}

	s.logger.Info(fmt.Sprintf("Loaded %d plugins", report.Loaded), "dir", dir, "failed", len(report.Diagnostics))
	return report
}

// LoadFile loads one file, recovering from panics in plugin code. A
// failure is logged and published as plugin.failed.
func (s *Scanner) LoadFile(ctx context.Context, path string) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("Plugin load panic", "path", path, "stack", string(debug.Stack()))
			p, err = nil, fmt.Errorf("unexpected failure loading %s: %v", path, r)
		}
		if err != nil {
			s.report(ctx, path, err)
		}
	}()
	return s.manager.Load(ctx, path)
}

func (s *Scanner) fail(ctx context.Context, report *Report, path string, err error) {
	report.Diagnostics = append(report.Diagnostics, Diagnostic{Path: path, Err: err})
	s.report(ctx, path, err)
}

func (s *Scanner) report(ctx context.Context, path string, err error) {
	var loadErr *UnableToLoadError
	if errors.As(err, &loadErr) {
		s.logger.Error("Unable to load plugin", "path", path, "loader", loadErr.Loader, "err", loadErr.Err)
	} else {
		s.logger.Error("Plugin load failed", "path", path, "err", err)
	}
	publish(ctx, s.manager, events.TopicPluginFailed, events.PluginFailed{Path: path, Error: err.Error()})
}
