package psd

import (
	"fmt"
	"math"
	"time"
)

// DBBins describes the decibel histogram axis: [Low, High) in Step-sized
// cells.
type DBBins struct {
	Low  float64
	High float64
	Step float64
}

// Count returns the number of histogram cells on the dB axis.
func (b DBBins) Count() int {
	return int(math.Round((b.High - b.Low) / b.Step))
}

// Params configures an accumulator. Two accumulators can only be merged when
// their params are identical.
type Params struct {
	WindowLength      time.Duration
	Overlap           float64
	PeriodLimits      [2]float64
	PeriodStepOctaves float64
	DBBins            DBBins
}

// DefaultParams mirrors the conventional PPSD settings: one-hour windows with
// 50% overlap, periods from 0.01 s to 1000 s in eighth-octave steps, and a
// [-200, -50) dB axis in quarter-dB cells.
func DefaultParams() Params {
	return Params{
		WindowLength:      time.Hour,
		Overlap:           0.5,
		PeriodLimits:      [2]float64{0.01, 1000},
		PeriodStepOctaves: 0.125,
		DBBins:            DBBins{Low: -200, High: -50, Step: 0.25},
	}
}

// Validate checks parameter sanity before an accumulator is created.
func (p Params) Validate() error {
	if p.WindowLength <= 0 {
		return fmt.Errorf("psd params: window length %v must be positive", p.WindowLength)
	}
	if p.Overlap < 0 || p.Overlap >= 1 {
		return fmt.Errorf("psd params: overlap %v must be in [0, 1)", p.Overlap)
	}
	if p.PeriodLimits[0] <= 0 || p.PeriodLimits[1] <= p.PeriodLimits[0] {
		return fmt.Errorf("psd params: period limits %v must be positive and increasing", p.PeriodLimits)
	}
	if p.PeriodStepOctaves <= 0 {
		return fmt.Errorf("psd params: period step %v must be positive", p.PeriodStepOctaves)
	}
	if p.DBBins.Step <= 0 || p.DBBins.High <= p.DBBins.Low {
		return fmt.Errorf("psd params: db bins %+v must be increasing with a positive step", p.DBBins)
	}
	return nil
}

// periodGrid returns the octave-spaced period bin centers for the params.
func (p Params) periodGrid() []float64 {
	factor := math.Pow(2, p.PeriodStepOctaves)
	periods := make([]float64, 0, 64)
	for period := p.PeriodLimits[0]; period <= p.PeriodLimits[1]*(1+1e-12); period *= factor {
		periods = append(periods, period)
	}
	return periods
}

// Equal reports whether two parameter sets describe the same histogram shape.
func (p Params) Equal(other Params) bool {
	return p.WindowLength == other.WindowLength &&
		p.Overlap == other.Overlap &&
		p.PeriodLimits == other.PeriodLimits &&
		p.PeriodStepOctaves == other.PeriodStepOctaves &&
		p.DBBins == other.DBBins
}
