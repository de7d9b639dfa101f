package preflight_test

import (
	"os"
	"path/filepath"
	"testing"

	"specbatch/internal/preflight"
)

func TestCheckOutputDirWritable(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckOutputDir("Output directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass for writable dir, got %q", result.Detail)
	}
}

func TestCheckOutputDirCreatable(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "results", "2023")
	result := preflight.CheckOutputDir("Output directory", missing)
	if !result.Passed {
		t.Fatalf("expected pass for creatable dir, got %q", result.Detail)
	}
}

func TestCheckOutputDirRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result := preflight.CheckOutputDir("Output directory", file)
	if result.Passed {
		t.Fatal("expected failure when target is a regular file")
	}
}

func TestCheckInputDirMissing(t *testing.T) {
	result := preflight.CheckInputDir("Input directory", filepath.Join(t.TempDir(), "absent"))
	if result.Passed {
		t.Fatal("expected failure for missing input dir")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inventory.toml")
	if err := os.WriteFile(path, []byte("[[channel]]\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if result := preflight.CheckFileReadable("Inventory", path); !result.Passed {
		t.Fatalf("expected pass, got %q", result.Detail)
	}
	if result := preflight.CheckFileReadable("Inventory", filepath.Join(dir, "absent.toml")); result.Passed {
		t.Fatal("expected failure for missing file")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := preflight.CheckFreeSpace("Free space", dir, 1); !result.Passed {
		t.Fatalf("expected pass for 1-byte floor, got %q", result.Detail)
	}
	if result := preflight.CheckFreeSpace("Free space", dir, 1<<62); result.Passed {
		t.Fatal("expected failure for absurd floor")
	}
}

func TestAllPassed(t *testing.T) {
	results := []preflight.Result{{Passed: true}, {Passed: true}}
	if !preflight.AllPassed(results) {
		t.Fatal("expected all passed")
	}
	results = append(results, preflight.Result{Passed: false})
	if preflight.AllPassed(results) {
		t.Fatal("expected failure to be detected")
	}
}
