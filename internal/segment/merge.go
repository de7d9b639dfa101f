package segment

import (
	"fmt"
	"sort"
	"time"

	"specbatch/internal/seed"
)

// Merge concatenates raw segments of a single recording source according to
// policy. Inputs must share the same seed ID and sample rate. windowLength is
// the estimator window; when the policy disallows partial windows, merged
// output shorter than one window is dropped.
//
// With GapFillNone every continuous input run stays independent. Other fill
// modes produce one segment spanning the full coverage, bridging gaps with
// synthetic samples. Overlapping samples are resolved deterministically: the
// later-starting segment wins.
func Merge(segments []Segment, policy MergePolicy, windowLength time.Duration) ([]Segment, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Range.Start.Before(ordered[j].Range.Start)
	})

	id := ordered[0].ID
	rate := ordered[0].SampleRate
	for _, seg := range ordered {
		if err := seg.Validate(); err != nil {
			return nil, err
		}
		if seg.ID != id {
			return nil, fmt.Errorf("merge: mixed seed ids %s and %s", id, seg.ID)
		}
		if seg.SampleRate != rate {
			return nil, fmt.Errorf("merge %s: mixed sample rates %v and %v", id, rate, seg.SampleRate)
		}
	}

	var out []Segment
	if policy.Fill == GapFillNone {
		out = ordered
	} else {
		merged := fillGaps(ordered, policy.Fill)
		out = []Segment{merged}
	}

	if !policy.AllowPartialWindows && windowLength > 0 {
		kept := out[:0]
		for _, seg := range out {
			if seg.Range.Duration() >= windowLength {
				kept = append(kept, seg)
			}
		}
		out = kept
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// fillGaps lays the ordered segments onto one sample grid anchored at the
// earliest start and bridges the holes per fill mode.
func fillGaps(ordered []Segment, fill GapFill) Segment {
	first := ordered[0]
	rate := first.SampleRate
	start := first.Range.Start
	end := first.Range.End
	for _, seg := range ordered[1:] {
		if seg.Range.End.After(end) {
			end = seg.Range.End
		}
	}

	period := first.SamplePeriod()
	total := int(end.Sub(start) / period)
	if total < 1 {
		total = 1
	}
	samples := make([]float64, total)
	written := make([]bool, total)

	for _, seg := range ordered {
		offset := int(seg.Range.Start.Sub(start) / period)
		for i, v := range seg.Samples {
			idx := offset + i
			if idx < 0 || idx >= total {
				continue
			}
			samples[idx] = v
			written[idx] = true
		}
	}

	hadGaps := bridgeGaps(samples, written, fill)

	return Segment{
		ID:         first.ID,
		Range:      seed.TimeRange{Start: start, End: end},
		SampleRate: rate,
		Samples:    samples,
		HasGaps:    hadGaps,
	}
}

// bridgeGaps fills unwritten runs in place and reports whether any existed.
func bridgeGaps(samples []float64, written []bool, fill GapFill) bool {
	hadGaps := false
	i := 0
	for i < len(samples) {
		if written[i] {
			i++
			continue
		}
		hadGaps = true
		runStart := i
		for i < len(samples) && !written[i] {
			i++
		}
		runEnd := i // exclusive

		switch fill {
		case GapFillZero:
			// samples are already zero
		case GapFillLatest:
			if runStart > 0 {
				last := samples[runStart-1]
				for j := runStart; j < runEnd; j++ {
					samples[j] = last
				}
			}
		case GapFillInterpolate:
			var left, right float64
			if runStart > 0 {
				left = samples[runStart-1]
			}
			if runEnd < len(samples) {
				right = samples[runEnd]
			} else {
				right = left
			}
			if runStart == 0 {
				left = right
			}
			span := float64(runEnd - runStart + 1)
			for j := runStart; j < runEnd; j++ {
				t := float64(j-runStart+1) / span
				samples[j] = left + (right-left)*t
			}
		}
	}
	return hadGaps
}
