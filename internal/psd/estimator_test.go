package psd_test

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"specbatch/internal/calibration"
	"specbatch/internal/handling"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
)

var (
	testID  = seed.NewID("BW", "RJOB", "", "EHZ")
	testCal = calibration.Calibration{ID: testID, Sensitivity: 1}
)

func testParams() psd.Params {
	return psd.Params{
		WindowLength:      10 * time.Second,
		Overlap:           0.5,
		PeriodLimits:      [2]float64{0.2, 5},
		PeriodStepOctaves: 0.5,
		DBBins:            psd.DBBins{Low: -200, High: 50, Step: 1},
	}
}

func sineSegment(t *testing.T, start string, duration time.Duration, rate, freq float64) segment.Segment {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	n := int(duration.Seconds() * rate)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / rate)
	}
	return segment.Segment{
		ID:         testID,
		Range:      seed.TimeRange{Start: s.UTC(), End: s.UTC().Add(duration)},
		SampleRate: rate,
		Samples:    samples,
	}
}

func TestAddAbsorbsWindows(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	seg := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	// 60 s of data, 10 s windows at 50% overlap: 11 windows.
	if h.WindowCount() != 11 {
		t.Fatalf("unexpected window count: %d", h.WindowCount())
	}
	if !h.Coverage().Start.Equal(seg.Range.Start) {
		t.Fatalf("coverage start %s want %s", h.Coverage().Start, seg.Range.Start)
	}
	if !h.Coverage().End.Equal(seg.Range.End) {
		t.Fatalf("coverage end %s want %s", h.Coverage().End, seg.Range.End)
	}

	// Each populated period bin normalizes to a probability distribution.
	acc := h.(*psd.Accumulator)
	for p, row := range acc.Counts() {
		var total float64
		for d := range row {
			total += acc.Distribution(p, d)
		}
		if total != 0 && math.Abs(total-1) > 1e-9 {
			t.Fatalf("period bin %d: distribution sums to %v", p, total)
		}
	}
}

func TestAddShortSegmentIsNoop(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	seg := sineSegment(t, "2023-05-01T00:00:00Z", 3*time.Second, 20, 1)
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Standard)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if h.WindowCount() != 0 {
		t.Fatalf("short segment must absorb nothing, got %d windows", h.WindowCount())
	}
}

func TestAddCanceledContextLeavesStateUntouched(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	seg := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("warm-up Add: %v", err)
	}
	before := h.WindowCount()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = est.Add(ctx, h, seg, testCal, handling.ModeFor(handling.Hydrophone))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.WindowCount() != before {
		t.Fatalf("canceled add mutated state: %d -> %d", before, h.WindowCount())
	}
}

func TestAddRejectsForeignSegment(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	seg := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
	seg.ID = seed.NewID("GR", "FUR", "", "BHZ")
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Standard)); err == nil {
		t.Fatal("expected error for mismatched source")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	seg := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "acc"+psd.FileExtension)
	if err := est.Save(h, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := est.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.ID() != h.ID() {
		t.Fatalf("id mismatch: %s vs %s", loaded.ID(), h.ID())
	}
	if loaded.WindowCount() != h.WindowCount() {
		t.Fatalf("window count mismatch: %d vs %d", loaded.WindowCount(), h.WindowCount())
	}
	if !loaded.Coverage().Equal(h.Coverage()) {
		t.Fatalf("coverage mismatch: %s vs %s", loaded.Coverage(), h.Coverage())
	}
	if got := loaded.(*psd.Accumulator).Params(); got != testParams() {
		t.Fatalf("params mismatch: %+v vs %+v", got, testParams())
	}
}

func TestSaveRefusesCollision(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "acc"+psd.FileExtension)
	if err := est.Save(h, path); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := est.Save(h, path); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
}

// Re-running the same inputs must reproduce byte-identical files.
func TestSaveIsByteDeterministic(t *testing.T) {
	dir := t.TempDir()
	est := psd.NewEstimator()
	var paths []string
	for i := 0; i < 2; i++ {
		h, err := est.New(testID, testParams())
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		seg := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
		if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
		path := filepath.Join(dir, "run"+string(rune('a'+i))+psd.FileExtension)
		if err := est.Save(h, path); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		paths = append(paths, path)
	}
	first, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	second, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("identical runs produced different accumulator bytes")
	}
}

// Scenario: two accumulators with disjoint coverage merge into union coverage
// and summed window counts.
func TestMergeIntoDisjointCoverage(t *testing.T) {
	est := psd.NewEstimator()
	first, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	second, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	segA := sineSegment(t, "2023-05-01T00:00:00Z", time.Minute, 20, 1)
	segB := sineSegment(t, "2023-05-03T00:00:00Z", time.Minute, 20, 2)
	if err := est.Add(context.Background(), first, segA, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add A: %v", err)
	}
	if err := est.Add(context.Background(), second, segB, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add B: %v", err)
	}

	wantWindows := first.WindowCount() + second.WindowCount()
	if err := est.MergeInto(first, second); err != nil {
		t.Fatalf("MergeInto returned error: %v", err)
	}
	if first.WindowCount() != wantWindows {
		t.Fatalf("window count: got %d want %d", first.WindowCount(), wantWindows)
	}
	wantCoverage := segA.Range.Union(segB.Range)
	if !first.Coverage().Equal(wantCoverage) {
		t.Fatalf("coverage: got %s want %s", first.Coverage(), wantCoverage)
	}
}

func TestMergeIntoRejectsMismatch(t *testing.T) {
	est := psd.NewEstimator()
	a, _ := est.New(testID, testParams())
	other, _ := est.New(seed.NewID("GR", "FUR", "", "BHZ"), testParams())
	if err := est.MergeInto(a, other); err == nil {
		t.Fatal("expected error for mixed sources")
	}

	altered := testParams()
	altered.Overlap = 0.25
	b, _ := est.New(testID, altered)
	if err := est.MergeInto(a, b); err == nil {
		t.Fatal("expected error for incompatible params")
	}
}

func TestNewValidatesParams(t *testing.T) {
	est := psd.NewEstimator()
	bad := testParams()
	bad.Overlap = 1.5
	if _, err := est.New(testID, bad); err == nil {
		t.Fatal("expected error for invalid overlap")
	}
}
