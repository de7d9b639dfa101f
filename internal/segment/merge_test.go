package segment_test

import (
	"errors"
	"testing"
	"time"

	"specbatch/internal/seed"
	"specbatch/internal/segment"
	"specbatch/internal/services"
)

var testID = seed.NewID("BW", "RJOB", "", "EHZ")

func makeSegment(t *testing.T, start string, samples []float64, rate float64) segment.Segment {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	end := s.Add(time.Duration(float64(len(samples)) / rate * float64(time.Second)))
	return segment.Segment{
		ID:         testID,
		Range:      seed.TimeRange{Start: s.UTC(), End: end.UTC()},
		SampleRate: rate,
		Samples:    samples,
	}
}

func TestResolvePolicy(t *testing.T) {
	policy, err := segment.ResolvePolicy("interpolate", false, true)
	if err != nil {
		t.Fatalf("ResolvePolicy returned error: %v", err)
	}
	if policy.Fill != segment.GapFillInterpolate || !policy.AllowPartialWindows {
		t.Fatalf("unexpected policy: %+v", policy)
	}
}

func TestResolvePolicySkipOnGapsForcesNone(t *testing.T) {
	policy, err := segment.ResolvePolicy("zero", true, false)
	if err != nil {
		t.Fatalf("ResolvePolicy returned error: %v", err)
	}
	if policy.Fill != segment.GapFillNone {
		t.Fatalf("skip_on_gaps must force no fill, got %v", policy.Fill)
	}
}

func TestResolvePolicyRejectsUnknownFill(t *testing.T) {
	_, err := segment.ResolvePolicy("extrapolate", false, false)
	if !errors.Is(err, services.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestMergeNoFillKeepsRunsSeparate(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{1, 2, 3, 4}, 1)
	b := makeSegment(t, "2023-05-01T00:00:10Z", []float64{5, 6, 7, 8}, 1)

	out, err := segment.Merge([]segment.Segment{b, a}, segment.MergePolicy{Fill: segment.GapFillNone, AllowPartialWindows: true}, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 independent runs, got %d", len(out))
	}
	if !out[0].Range.Start.Before(out[1].Range.Start) {
		t.Fatal("merge output must be ordered by start time")
	}
}

func TestMergeZeroFillBridgesGap(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{1, 1, 1, 1}, 1)
	b := makeSegment(t, "2023-05-01T00:00:06Z", []float64{2, 2}, 1)

	out, err := segment.Merge([]segment.Segment{a, b}, segment.MergePolicy{Fill: segment.GapFillZero, AllowPartialWindows: true}, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected a single merged segment, got %d", len(out))
	}
	merged := out[0]
	if !merged.HasGaps {
		t.Fatal("merged segment should be flagged as gapped")
	}
	want := []float64{1, 1, 1, 1, 0, 0, 2, 2}
	if len(merged.Samples) != len(want) {
		t.Fatalf("unexpected sample count: got %d want %d", len(merged.Samples), len(want))
	}
	for i, v := range want {
		if merged.Samples[i] != v {
			t.Fatalf("sample %d: got %v want %v", i, merged.Samples[i], v)
		}
	}
}

func TestMergeInterpolateFill(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{0, 0}, 1)
	b := makeSegment(t, "2023-05-01T00:00:05Z", []float64{6, 6}, 1)

	out, err := segment.Merge([]segment.Segment{a, b}, segment.MergePolicy{Fill: segment.GapFillInterpolate, AllowPartialWindows: true}, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	merged := out[0]
	// Gap covers indexes 2..4; ramp from 0 to 6 over four steps.
	want := []float64{0, 0, 1.5, 3, 4.5, 6, 6}
	for i, v := range want {
		if diff := merged.Samples[i] - v; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("sample %d: got %v want %v", i, merged.Samples[i], v)
		}
	}
}

func TestMergeLatestFillRepeatsLastSample(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{3, 9}, 1)
	b := makeSegment(t, "2023-05-01T00:00:04Z", []float64{5}, 1)

	out, err := segment.Merge([]segment.Segment{a, b}, segment.MergePolicy{Fill: segment.GapFillLatest, AllowPartialWindows: true}, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	merged := out[0]
	want := []float64{3, 9, 9, 9, 5}
	for i, v := range want {
		if merged.Samples[i] != v {
			t.Fatalf("sample %d: got %v want %v", i, merged.Samples[i], v)
		}
	}
}

func TestMergeDropsPartialWindows(t *testing.T) {
	short := makeSegment(t, "2023-05-01T00:00:00Z", []float64{1, 2, 3}, 1)
	long := makeSegment(t, "2023-05-01T01:00:00Z", make([]float64, 20), 1)

	out, err := segment.Merge(
		[]segment.Segment{short, long},
		segment.MergePolicy{Fill: segment.GapFillNone, AllowPartialWindows: false},
		10*time.Second,
	)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the short run to be dropped, got %d segments", len(out))
	}
	if !out[0].Range.Start.Equal(long.Range.Start) {
		t.Fatal("surviving segment should be the long run")
	}
}

func TestMergeDeterministic(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{1, 2, 3, 4}, 1)
	b := makeSegment(t, "2023-05-01T00:00:06Z", []float64{5, 6}, 1)
	policy := segment.MergePolicy{Fill: segment.GapFillZero, AllowPartialWindows: true}

	first, err := segment.Merge([]segment.Segment{a, b}, policy, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	second, err := segment.Merge([]segment.Segment{b, a}, policy, 0)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Range.Equal(second[i].Range) {
			t.Fatalf("ranges differ at %d", i)
		}
		for j := range first[i].Samples {
			if first[i].Samples[j] != second[i].Samples[j] {
				t.Fatalf("sample %d/%d differs", i, j)
			}
		}
	}
}

func TestMergeRejectsMixedSources(t *testing.T) {
	a := makeSegment(t, "2023-05-01T00:00:00Z", []float64{1, 2}, 1)
	b := makeSegment(t, "2023-05-01T00:00:02Z", []float64{3, 4}, 1)
	b.ID = seed.NewID("BW", "ROTZ", "", "EHZ")

	if _, err := segment.Merge([]segment.Segment{a, b}, segment.MergePolicy{Fill: segment.GapFillZero}, 0); err == nil {
		t.Fatal("expected error for mixed seed ids")
	}
}
