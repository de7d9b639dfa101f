package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"specbatch/internal/fileutil"
)

//go:embed sample_calc.toml
var sampleCalc string

//go:embed sample_plot.toml
var samplePlot string

// SampleCompute returns the annotated sample compute document.
func SampleCompute() string { return sampleCalc }

// SamplePlot returns the annotated sample plot document.
func SamplePlot() string { return samplePlot }

// WriteSamples writes sample_calc.toml and sample_plot.toml under dir and
// returns the written paths. Existing files are not overwritten.
func WriteSamples(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sample directory %q: %w", dir, err)
	}
	samples := []struct {
		name string
		body string
	}{
		{"sample_calc.toml", sampleCalc},
		{"sample_plot.toml", samplePlot},
	}
	paths := make([]string, 0, len(samples))
	for _, sample := range samples {
		path := filepath.Join(dir, sample.name)
		if err := fileutil.WriteFileExclusive(path, []byte(sample.body), 0o644); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return paths, fmt.Errorf("sample already exists at %s", path)
			}
			return paths, fmt.Errorf("write sample %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
