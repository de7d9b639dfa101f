package psd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"specbatch/internal/fileutil"
	"specbatch/internal/seed"
)

// FileExtension is the suffix of persisted accumulator files.
const FileExtension = ".ppsd.json"

const fileVersion = 1

// accumulatorFile is the on-disk schema. Field order is fixed so identical
// accumulators always encode to identical bytes.
type accumulatorFile struct {
	Version           int        `json:"version"`
	ID                string     `json:"id"`
	WindowLengthSec   float64    `json:"window_length_sec"`
	Overlap           float64    `json:"overlap"`
	PeriodLimits      [2]float64 `json:"period_limits"`
	PeriodStepOctaves float64    `json:"period_step_octaves"`
	DBLow             float64    `json:"db_low"`
	DBHigh            float64    `json:"db_high"`
	DBStep            float64    `json:"db_step"`
	CoverageStart     string     `json:"coverage_start"`
	CoverageEnd       string     `json:"coverage_end"`
	WindowCount       int        `json:"window_count"`
	Counts            [][]int64  `json:"counts"`
}

// Save persists the accumulator. It refuses to replace an existing file:
// a name collision surfaces as fs.ErrExist for the caller to classify.
func (histogramEstimator) Save(h Handle, path string) error {
	acc, err := concrete(h)
	if err != nil {
		return err
	}
	file := accumulatorFile{
		Version:           fileVersion,
		ID:                acc.id.String(),
		WindowLengthSec:   acc.params.WindowLength.Seconds(),
		Overlap:           acc.params.Overlap,
		PeriodLimits:      acc.params.PeriodLimits,
		PeriodStepOctaves: acc.params.PeriodStepOctaves,
		DBLow:             acc.params.DBBins.Low,
		DBHigh:            acc.params.DBBins.High,
		DBStep:            acc.params.DBBins.Step,
		WindowCount:       acc.windowCount,
		Counts:            acc.counts,
	}
	if !acc.coverage.IsZero() {
		file.CoverageStart = acc.coverage.Start.UTC().Format(time.RFC3339Nano)
		file.CoverageEnd = acc.coverage.End.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accumulator: %w", err)
	}
	return fileutil.WriteFileExclusive(path, append(data, '\n'), 0o644)
}

// Load reads a persisted accumulator back into a handle.
func (histogramEstimator) Load(path string) (Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file accumulatorFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode accumulator %s: %w", path, err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("accumulator %s: unsupported version %d", path, file.Version)
	}
	id, err := seed.ParseID(file.ID)
	if err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", path, err)
	}
	params := Params{
		WindowLength:      time.Duration(file.WindowLengthSec * float64(time.Second)),
		Overlap:           file.Overlap,
		PeriodLimits:      file.PeriodLimits,
		PeriodStepOctaves: file.PeriodStepOctaves,
		DBBins:            DBBins{Low: file.DBLow, High: file.DBHigh, Step: file.DBStep},
	}
	acc, err := newAccumulator(id, params)
	if err != nil {
		return nil, fmt.Errorf("accumulator %s: %w", path, err)
	}
	if len(file.Counts) != len(acc.counts) {
		return nil, fmt.Errorf("accumulator %s: %d period bins, expected %d", path, len(file.Counts), len(acc.counts))
	}
	for i, row := range file.Counts {
		if len(row) != len(acc.counts[i]) {
			return nil, fmt.Errorf("accumulator %s: period bin %d has %d cells, expected %d", path, i, len(row), len(acc.counts[i]))
		}
		copy(acc.counts[i], row)
	}
	acc.windowCount = file.WindowCount
	if file.CoverageStart != "" {
		start, err := time.Parse(time.RFC3339Nano, file.CoverageStart)
		if err != nil {
			return nil, fmt.Errorf("accumulator %s: coverage start: %w", path, err)
		}
		end, err := time.Parse(time.RFC3339Nano, file.CoverageEnd)
		if err != nil {
			return nil, fmt.Errorf("accumulator %s: coverage end: %w", path, err)
		}
		acc.coverage, err = seed.NewTimeRange(start, end)
		if err != nil {
			return nil, fmt.Errorf("accumulator %s: %w", path, err)
		}
	}
	return acc, nil
}
