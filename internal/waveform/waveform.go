// Package waveform supplies decoded segments to the pipeline.
//
// The pipeline depends only on the Source interface; the bundled filesystem
// source resolves locators (a directory or a glob pattern) and decodes a
// plain JSON segment format. Decode failures stay per-file: the caller skips
// the file, counts it, and carries on.
package waveform

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"specbatch/internal/seed"
	"specbatch/internal/segment"
)

// FileExtension is the suffix of waveform segment files the filesystem
// source recognizes.
const FileExtension = ".wave.json"

// Source lists and decodes waveform files for compute jobs.
type Source interface {
	// List resolves a locator to an ordered set of decodable file paths.
	List(ctx context.Context, locator string) ([]string, error)
	// Decode reads every trace in one file. The returned segments carry
	// populated IDs and time ranges.
	Decode(ctx context.Context, path string) ([]segment.Segment, error)
}

// NewFilesystemSource returns the default file-backed source.
func NewFilesystemSource() Source {
	return fsSource{}
}

type fsSource struct{}

type waveFile struct {
	Traces []traceEntry `json:"traces"`
}

type traceEntry struct {
	ID         string    `json:"id"`
	Start      time.Time `json:"start"`
	SampleRate float64   `json:"sample_rate"`
	Samples    []float64 `json:"samples"`
}

func (fsSource) List(ctx context.Context, locator string) ([]string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf("waveform: empty locator")
	}

	info, err := os.Stat(locator)
	if err == nil && info.IsDir() {
		return listDir(ctx, locator)
	}

	matches, err := filepath.Glob(locator)
	if err != nil {
		return nil, fmt.Errorf("waveform: bad glob %q: %w", locator, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func listDir(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), FileExtension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("waveform: walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (fsSource) Decode(ctx context.Context, path string) ([]segment.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file waveFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(file.Traces) == 0 {
		return nil, fmt.Errorf("decode %s: no traces", path)
	}

	segments := make([]segment.Segment, 0, len(file.Traces))
	for i, trace := range file.Traces {
		id, err := seed.ParseID(trace.ID)
		if err != nil {
			return nil, fmt.Errorf("decode %s: trace %d: %w", path, i, err)
		}
		if trace.SampleRate <= 0 {
			return nil, fmt.Errorf("decode %s: trace %d: sample rate %v must be positive", path, i, trace.SampleRate)
		}
		if len(trace.Samples) == 0 {
			return nil, fmt.Errorf("decode %s: trace %d: no samples", path, i)
		}
		start := trace.Start.UTC()
		end := start.Add(time.Duration(float64(len(trace.Samples)) / trace.SampleRate * float64(time.Second)))
		seg := segment.Segment{
			ID:         id,
			Range:      seed.TimeRange{Start: start, End: end},
			SampleRate: trace.SampleRate,
			Samples:    trace.Samples,
		}
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("decode %s: trace %d: %w", path, i, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}
