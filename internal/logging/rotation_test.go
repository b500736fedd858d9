package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriter_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	// Shrink the threshold so the test stays fast.
	rw.maxBytes = 100

	chunk := []byte(strings.Repeat("x", 60) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf("expected no third backup, stat err = %v", err)
	}
}

func TestRotatingWriter_NoRotationWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer rw.Close()

	for i := 0; i < 10; i++ {
		if _, err := rw.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if got := rw.CurrentSize(); got != 50 {
		t.Errorf("CurrentSize() = %d, want 50", got)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("unexpected backup file, stat err = %v", err)
	}
}

func TestRotatingWriter_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(path, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	if rw.CurrentSize() != 4 {
		t.Errorf("CurrentSize() = %d, want 4", rw.CurrentSize())
	}
	if _, err := rw.Write([]byte("new\n")); err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Errorf("file content = %q", data)
	}
	if rw.FilePath() != path {
		t.Errorf("FilePath() = %q", rw.FilePath())
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "test.log"), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte("x")); err == nil {
		t.Error("expected error writing to closed writer")
	}
	if err := rw.Close(); err != nil {
		t.Errorf("double Close() error = %v", err)
	}
}

func TestRotatingWriter_Compress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	rw.maxBytes = 10

	for i := 0; i < 2; i++ {
		if _, err := rw.Write([]byte("0123456789")); err != nil {
			t.Fatal(err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Errorf("expected compressed backup: %v", err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("uncompressed backup should be removed, stat err = %v", err)
	}
}
