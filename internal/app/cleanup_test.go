package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

func TestCleanTempNested(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "temp")
	deep := filepath.Join(dir, "x", "y", "z")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "x", "b.txt"),
		filepath.Join(deep, "c.txt"),
	} {
		if err := os.WriteFile(f, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := CleanTemp(dir, log.New(io.Discard)); err != nil {
		t.Fatalf("CleanTemp() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still exists: %v", err)
	}
}

func TestCleanTempMissingDir(t *testing.T) {
	if err := CleanTemp(filepath.Join(t.TempDir(), "missing"), log.New(io.Discard)); err != nil {
		t.Errorf("CleanTemp() on missing dir error = %v", err)
	}
}

func TestCleanTempContinuesPastFailures(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}

	dir := filepath.Join(t.TempDir(), "temp")
	locked := filepath.Join(dir, "locked")
	if err := os.MkdirAll(locked, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(locked, "stuck.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	free := filepath.Join(dir, "free.txt")
	if err := os.WriteFile(free, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	if err := CleanTemp(dir, log.New(io.Discard)); err == nil {
		t.Error("CleanTemp() should report the locked file")
	}
	if _, err := os.Stat(free); !os.IsNotExist(err) {
		t.Errorf("free file not removed: %v", err)
	}
}
