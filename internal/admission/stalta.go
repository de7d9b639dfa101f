package admission

import "specbatch/internal/segment"

// detectEvent runs a classic STA/LTA sweep over the segment energy and
// reports whether the ratio crosses the "on" threshold anywhere. A crossing
// rejects the whole segment; no sub-interval trimming is attempted.
func detectEvent(seg segment.Segment, rules EventRules) bool {
	if rules.ThresholdOn <= 0 || rules.ShortWindow <= 0 || rules.LongWindow <= rules.ShortWindow {
		return false
	}
	n := len(seg.Samples)
	sta := int(rules.ShortWindow.Seconds() * seg.SampleRate)
	lta := int(rules.LongWindow.Seconds() * seg.SampleRate)
	if sta < 1 {
		sta = 1
	}
	if lta <= sta || n < lta {
		// Too short to establish a long-term baseline.
		return false
	}

	// Prefix sums of sample energy keep the sweep O(n).
	prefix := make([]float64, n+1)
	for i, v := range seg.Samples {
		prefix[i+1] = prefix[i] + v*v
	}
	windowMean := func(end, width int) float64 {
		return (prefix[end] - prefix[end-width]) / float64(width)
	}

	for end := lta; end <= n; end++ {
		long := windowMean(end, lta)
		if long <= 0 {
			continue
		}
		short := windowMean(end, sta)
		if short/long > rules.ThresholdOn {
			return true
		}
	}
	return false
}
