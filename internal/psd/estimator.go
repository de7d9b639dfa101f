package psd

import (
	"context"
	"fmt"
	"math"
	"time"

	"specbatch/internal/calibration"
	"specbatch/internal/handling"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
)

// Estimator is the numerical core the pipeline drives. Implementations must
// keep Add and MergeInto commutative in their statistical effect: permuting
// the order of adds or merges yields the same distribution.
type Estimator interface {
	New(id seed.ID, params Params) (Handle, error)
	// Add absorbs one admitted segment. The context bounds pathological
	// inputs; on cancellation the accumulator is left as it was before the
	// call.
	Add(ctx context.Context, h Handle, seg segment.Segment, cal calibration.Calibration, mode handling.Mode) error
	Save(h Handle, path string) error
	Load(path string) (Handle, error)
	MergeInto(dst, src Handle) error
}

// NewEstimator returns the default histogram estimator.
func NewEstimator() Estimator {
	return histogramEstimator{}
}

type histogramEstimator struct{}

func (histogramEstimator) New(id seed.ID, params Params) (Handle, error) {
	return newAccumulator(id, params)
}

func (histogramEstimator) Add(ctx context.Context, h Handle, seg segment.Segment, cal calibration.Calibration, mode handling.Mode) error {
	acc, err := concrete(h)
	if err != nil {
		return err
	}
	if err := seg.Validate(); err != nil {
		return err
	}
	if seg.ID != acc.id {
		return fmt.Errorf("psd add: segment %s does not belong to accumulator %s", seg.ID, acc.id)
	}
	if cal.Sensitivity <= 0 {
		return fmt.Errorf("psd add %s: calibration sensitivity %v must be positive", acc.id, cal.Sensitivity)
	}

	samples := correct(seg, cal, mode)
	rate := seg.SampleRate
	windowSamples := int(acc.params.WindowLength.Seconds() * rate)
	if windowSamples < 2 || len(samples) < windowSamples {
		// Shorter than one window: nothing to absorb, not an error.
		return nil
	}
	step := int(float64(windowSamples) * (1 - acc.params.Overlap))
	if step < 1 {
		step = 1
	}

	// Stage into a scratch accumulator so a timeout mid-segment leaves the
	// caller's state untouched.
	scratch, err := newAccumulator(acc.id, acc.params)
	if err != nil {
		return err
	}
	samplePeriod := seg.SamplePeriod()
	for offset := 0; offset+windowSamples <= len(samples); offset += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		windowStart := seg.Range.Start.Add(time.Duration(offset) * samplePeriod)
		scratch.absorbWindow(samples[offset:offset+windowSamples], rate, seed.TimeRange{
			Start: windowStart,
			End:   windowStart.Add(acc.params.WindowLength),
		})
	}
	if scratch.windowCount == 0 {
		return nil
	}
	acc.fold(scratch)
	return nil
}

func (histogramEstimator) MergeInto(dst, src Handle) error {
	d, err := concrete(dst)
	if err != nil {
		return err
	}
	s, err := concrete(src)
	if err != nil {
		return err
	}
	if d.id != s.id {
		return fmt.Errorf("psd merge: mixed sources %s and %s", d.id, s.id)
	}
	if !d.params.Equal(s.params) {
		return fmt.Errorf("psd merge %s: incompatible params", d.id)
	}
	d.fold(s)
	return nil
}

// correct applies the calibration and handling mode to the raw samples.
// Correction beyond the overall sensitivity is delegated to the instrument
// metadata and is identical for the full-response and sensitivity-only modes
// at this level.
func correct(seg segment.Segment, cal calibration.Calibration, mode handling.Mode) []float64 {
	scale := 1 / cal.Sensitivity
	if mode.Differentiate && len(seg.Samples) > 1 {
		out := make([]float64, len(seg.Samples)-1)
		for i := range out {
			out[i] = (seg.Samples[i+1] - seg.Samples[i]) * seg.SampleRate * scale
		}
		return out
	}
	out := make([]float64, len(seg.Samples))
	for i, v := range seg.Samples {
		out[i] = v * scale
	}
	return out
}

// absorbWindow computes the window's power at each period bin, converts to
// dB, and counts the observation.
func (a *Accumulator) absorbWindow(window []float64, rate float64, windowRange seed.TimeRange) {
	n := len(window)
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(n)

	nyquist := rate / 2
	windowSeconds := float64(n) / rate
	for i, period := range a.periods {
		freq := 1 / period
		if freq > nyquist || period > windowSeconds {
			continue
		}
		power := goertzelPower(window, mean, freq, rate)
		// One-sided PSD estimate at the bin frequency.
		density := 2 * power / (float64(n) * rate)
		db := 10 * math.Log10(density+math.SmallestNonzeroFloat64)
		bin := int(math.Floor((db - a.params.DBBins.Low) / a.params.DBBins.Step))
		if bin < 0 || bin >= len(a.counts[i]) {
			continue
		}
		a.counts[i][bin]++
	}
	a.windowCount++
	a.coverage = a.coverage.Union(windowRange)
}

// fold adds other's histogram, coverage, and window count into a. Both sides
// must already share id and params.
func (a *Accumulator) fold(other *Accumulator) {
	for i := range a.counts {
		row, src := a.counts[i], other.counts[i]
		for j := range row {
			row[j] += src[j]
		}
	}
	a.windowCount += other.windowCount
	a.coverage = a.coverage.Union(other.coverage)
}

// goertzelPower evaluates the window's spectral power at one frequency using
// the Goertzel recurrence, with the window mean removed.
func goertzelPower(window []float64, mean, freq, rate float64) float64 {
	omega := 2 * math.Pi * freq / rate
	coeff := 2 * math.Cos(omega)
	var s1, s2 float64
	for _, v := range window {
		s0 := (v - mean) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	return s1*s1 + s2*s2 - coeff*s1*s2
}

func concrete(h Handle) (*Accumulator, error) {
	acc, ok := h.(*Accumulator)
	if !ok || acc == nil {
		return nil, fmt.Errorf("psd: foreign accumulator handle %T", h)
	}
	return acc, nil
}
