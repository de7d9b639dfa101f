// Package preflight provides readiness checks for the filesystem paths a run
// depends on. The scheduler calls RunAll before starting any job so a doomed
// run fails in seconds instead of after hours of spectral estimation, and the
// CLI uses the individual checks to explain exactly which path is the problem.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"specbatch/internal/config"
)

// MinFreeBytes is the free-space floor for output directories. Accumulator
// files are small but plot images are not, and a run can produce thousands.
const MinFreeBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks every job in the run depends on. Output
// directories are created on demand, so a missing directory only fails when
// its parent is unwritable.
func RunAll(computes []*config.Compute, plots []*config.Plot) []Result {
	var results []Result
	seen := make(map[string]bool)

	outputDir := func(path string) {
		if path == "" || seen["dir:"+path] {
			return
		}
		seen["dir:"+path] = true
		results = append(results, CheckOutputDir("Output directory", path))
		results = append(results, CheckFreeSpace("Free space", path, MinFreeBytes))
	}
	inventory := func(path string) {
		if path == "" || seen["file:"+path] {
			return
		}
		seen["file:"+path] = true
		results = append(results, CheckFileReadable("Inventory", path))
	}

	for _, job := range computes {
		outputDir(job.OutputDir)
		inventory(job.InventoryPath)
	}
	for _, job := range plots {
		outputDir(job.OutputDir)
		inventory(job.InventoryPath)
		if job.InputNPZDir != "" && !seen["in:"+job.InputNPZDir] {
			seen["in:"+job.InputNPZDir] = true
			results = append(results, CheckInputDir("Input directory", job.InputNPZDir))
		}
	}
	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// CheckOutputDir verifies the directory is writable, or that it can be
// created because its nearest existing ancestor is writable.
func CheckOutputDir(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
		}
		if err := unix.Access(path, unix.W_OK|unix.X_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", path)}
	case os.IsNotExist(err):
		ancestor := nearestExistingDir(path)
		if err := unix.Access(ancestor, unix.W_OK|unix.X_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, ancestor, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
}

// CheckInputDir verifies the directory exists and is readable.
func CheckInputDir(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckFileReadable verifies the file exists and is readable.
func CheckFileReadable(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available. A path that does not exist yet is measured at its nearest
// existing ancestor.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	target := path
	if _, err := os.Stat(target); os.IsNotExist(err) {
		target = nearestExistingDir(path)
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(target, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", target, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %d MiB free, need %d MiB)", target, free>>20, minBytes>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", target, free>>20)}
}

// nearestExistingDir walks up from path until it finds a directory that
// exists. It bottoms out at "." or the filesystem root.
func nearestExistingDir(path string) string {
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return parent
		}
		path = parent
	}
}
