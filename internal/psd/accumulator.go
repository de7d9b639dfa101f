package psd

import (
	"specbatch/internal/seed"
)

// Handle is the pipeline's view of an accumulator: identity, coverage, and
// how many windows it has absorbed. The statistical payload stays opaque.
type Handle interface {
	ID() seed.ID
	Coverage() seed.TimeRange
	WindowCount() int
}

// Accumulator is the default estimator's per-source statistical state: a
// count histogram over (period bin, dB bin) cells.
type Accumulator struct {
	id          seed.ID
	params      Params
	periods     []float64
	counts      [][]int64 // [period bin][dB bin]
	coverage    seed.TimeRange
	windowCount int
}

// ID returns the recording source this accumulator summarizes.
func (a *Accumulator) ID() seed.ID { return a.id }

// Coverage returns the union of all window time ranges absorbed so far.
func (a *Accumulator) Coverage() seed.TimeRange { return a.coverage }

// WindowCount returns the number of windows absorbed so far.
func (a *Accumulator) WindowCount() int { return a.windowCount }

// Params returns the accumulator's configuration.
func (a *Accumulator) Params() Params { return a.params }

// Periods returns the period bin centers, for rendering.
func (a *Accumulator) Periods() []float64 { return a.periods }

// Counts exposes the histogram cells, for rendering and tests. Callers must
// not mutate the returned slices.
func (a *Accumulator) Counts() [][]int64 { return a.counts }

// Distribution returns the observation probability for one (period, dB)
// cell: the cell count divided by the total observations in that period bin.
func (a *Accumulator) Distribution(periodBin, dbBin int) float64 {
	if periodBin < 0 || periodBin >= len(a.counts) {
		return 0
	}
	row := a.counts[periodBin]
	var total int64
	for _, c := range row {
		total += c
	}
	if total == 0 || dbBin < 0 || dbBin >= len(row) {
		return 0
	}
	return float64(row[dbBin]) / float64(total)
}

func newAccumulator(id seed.ID, params Params) (*Accumulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	periods := params.periodGrid()
	counts := make([][]int64, len(periods))
	for i := range counts {
		counts[i] = make([]int64, params.DBBins.Count())
	}
	return &Accumulator{
		id:      id,
		params:  params,
		periods: periods,
		counts:  counts,
	}, nil
}
