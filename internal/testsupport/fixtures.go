// Package testsupport holds fixture builders shared across package tests:
// synthetic waveform segments and files, calibration inventories, and job
// documents.
package testsupport

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"specbatch/internal/seed"
	"specbatch/internal/segment"
)

// DefaultSampleRate is the sample rate fixture segments use.
const DefaultSampleRate = 20.0

// SineSegment builds a pure-tone segment starting at the RFC 3339 instant.
func SineSegment(t testing.TB, id seed.ID, start string, duration time.Duration, freq float64) segment.Segment {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		t.Fatalf("parse start %q: %v", start, err)
	}
	samples := make([]float64, int(duration.Seconds()*DefaultSampleRate))
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / DefaultSampleRate)
	}
	return segment.Segment{
		ID:         id,
		Range:      seed.TimeRange{Start: s.UTC(), End: s.UTC().Add(duration)},
		SampleRate: DefaultSampleRate,
		Samples:    samples,
	}
}

// WriteWaveformFile writes segments as one waveform file in the filesystem
// source's JSON format and returns the path.
func WriteWaveformFile(t testing.TB, path string, segments ...segment.Segment) string {
	t.Helper()
	traces := make([]map[string]any, 0, len(segments))
	for _, seg := range segments {
		traces = append(traces, map[string]any{
			"id":          seg.ID.String(),
			"start":       seg.Range.Start.Format(time.RFC3339),
			"sample_rate": seg.SampleRate,
			"samples":     seg.Samples,
		})
	}
	data, err := json.Marshal(map[string]any{"traces": traces})
	if err != nil {
		t.Fatalf("marshal waveform: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteInventory writes a calibration inventory with unit sensitivity for
// every id and returns the path.
func WriteInventory(t testing.TB, path string, ids ...seed.ID) string {
	t.Helper()
	var b strings.Builder
	for _, id := range ids {
		b.WriteString("[[channel]]\n")
		b.WriteString("id = \"" + id.String() + "\"\n")
		b.WriteString("sensitivity = 1.0\n\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ComputeDoc describes a compute job fixture.
type ComputeDoc struct {
	MseedPattern  string
	InventoryPath string
	OutputDir     string
	ExtraArgs     string
}

// WriteComputeDoc writes a small-window compute document and returns the
// path. ExtraArgs lines are appended verbatim to the [args] table.
func WriteComputeDoc(t testing.TB, path string, doc ComputeDoc) string {
	t.Helper()
	body := "mseed_pattern = \"" + doc.MseedPattern + "\"\n" +
		"inventory_path = \"" + doc.InventoryPath + "\"\n" +
		"output_dir = \"" + doc.OutputDir + "\"\n\n" +
		"[args]\n" +
		"ppsd_length = 10.0\n" +
		"overlap = 0.5\n" +
		"period_limits = [0.2, 5.0]\n" +
		"period_step_octaves = 0.5\n" +
		"db_bins = [-200.0, 50.0, 1.0]\n" +
		"special_handling = \"hydrophone\"\n" +
		doc.ExtraArgs
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// PlotDoc describes a plot job fixture.
type PlotDoc struct {
	InputDir  string
	OutputDir string
	Merge     bool
	PlotType  string
}

// WritePlotDoc writes a plot document and returns the path.
func WritePlotDoc(t testing.TB, path string, doc PlotDoc) string {
	t.Helper()
	mergeTag := "false"
	if doc.Merge {
		mergeTag = "true"
	}
	plotType := doc.PlotType
	if plotType == "" {
		plotType = "standard"
	}
	body := "input_npz_dir = \"" + doc.InputDir + "\"\n" +
		"output_dir = \"" + doc.OutputDir + "\"\n" +
		"npz_merge_strategy = " + mergeTag + "\n\n" +
		"[args]\n" +
		"plot_type = \"" + plotType + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
