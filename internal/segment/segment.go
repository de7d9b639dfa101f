package segment

import (
	"fmt"
	"time"

	"specbatch/internal/seed"
)

// Segment is an ordered run of samples for one recording source. It is
// produced by the waveform decoder or the merge step and consumed once by the
// admission gate.
type Segment struct {
	ID         seed.ID
	Range      seed.TimeRange
	SampleRate float64
	Samples    []float64
	// HasGaps marks segments whose samples include filled gap regions.
	HasGaps bool
}

// Validate checks the structural invariants a decoded segment must satisfy.
func (s Segment) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("segment: missing seed id")
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("segment %s: sample rate %v must be positive", s.ID, s.SampleRate)
	}
	if len(s.Samples) == 0 {
		return fmt.Errorf("segment %s: no samples", s.ID)
	}
	if s.Range.IsZero() || !s.Range.End.After(s.Range.Start) {
		return fmt.Errorf("segment %s: empty time range %s", s.ID, s.Range)
	}
	return nil
}

// SamplePeriod returns the duration between consecutive samples.
func (s Segment) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / s.SampleRate)
}
