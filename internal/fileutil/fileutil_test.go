package fileutil_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"specbatch/internal/fileutil"
)

func TestWriteFileExclusiveCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deep", "result.json")
	if err := fileutil.WriteFileExclusive(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFileExclusive returned error: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestWriteFileExclusiveRefusesCollision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acc.json")
	if err := fileutil.WriteFileExclusive(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := fileutil.WriteFileExclusive(path, []byte("two"), 0o644)
	if err == nil {
		t.Fatal("expected collision error")
	}
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "one" {
		t.Fatalf("original content must survive, got %q", got)
	}
}

func TestWriteFileExclusiveLeavesNoTempOnCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acc.json")
	if err := fileutil.WriteFileExclusive(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	_ = fileutil.WriteFileExclusive(path, []byte("two"), 0o644)

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("temp files left behind: %v", names)
	}
}
