package accumulator_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"specbatch/internal/accumulator"
	"specbatch/internal/calibration"
	"specbatch/internal/handling"
	"specbatch/internal/logging"
	"specbatch/internal/psd"
	"specbatch/internal/seed"
	"specbatch/internal/segment"
	"specbatch/internal/services"
)

const testOwner = "station_calc.toml"

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

func sineSegment(t *testing.T, id seed.ID, start string, duration time.Duration) segment.Segment {
	t.Helper()
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		t.Fatalf("parse start: %v", err)
	}
	const rate = 20.0
	samples := make([]float64, int(duration.Seconds()*rate))
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * float64(i) / rate)
	}
	return segment.Segment{
		ID:         id,
		Range:      seed.TimeRange{Start: s.UTC(), End: s.UTC().Add(duration)},
		SampleRate: rate,
		Samples:    samples,
	}
}

func newManager(t *testing.T, opts ...accumulator.Option) *accumulator.Manager {
	t.Helper()
	return accumulator.NewManager(psd.NewEstimator(), logging.NewNop(), opts...)
}

func TestAcquireReturnsSameEntry(t *testing.T) {
	m := newManager(t)
	first, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	second, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("second Acquire returned error: %v", err)
	}
	if first != second {
		t.Fatal("expected a single in-memory accumulator per job and source")
	}
	if len(m.Entries()) != 1 {
		t.Fatalf("registry size: got %d want 1", len(m.Entries()))
	}
}

// Two jobs covering the same source must each get their own accumulator;
// one job persisting must not lose or reject the other job's data.
func TestAcquireIsolatesJobs(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t)
	first, err := m.Acquire("first_calc.toml", testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire first: %v", err)
	}
	second, err := m.Acquire("second_calc.toml", testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire second: %v", err)
	}
	if first == second {
		t.Fatal("jobs must not share one accumulator entry")
	}

	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", time.Minute)
	if _, err := first.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add first: %v", err)
	}
	if err := first.Persist(filepath.Join(dir, "first"+psd.FileExtension)); err != nil {
		t.Fatalf("Persist first: %v", err)
	}

	// The second job keeps absorbing after the first one finished.
	if _, err := second.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add second after first persisted: %v", err)
	}
	if err := second.Persist(filepath.Join(dir, "second"+psd.FileExtension)); err != nil {
		t.Fatalf("Persist second: %v", err)
	}
	if first.Handle().WindowCount() != second.Handle().WindowCount() {
		t.Fatalf("window counts diverged: %d vs %d",
			first.Handle().WindowCount(), second.Handle().WindowCount())
	}
}

func TestAcquireSeedsFromPriorFile(t *testing.T) {
	est := psd.NewEstimator()
	h, err := est.New(testID, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", time.Minute)
	if err := est.Add(context.Background(), h, seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	prior := filepath.Join(t.TempDir(), "prior"+psd.FileExtension)
	if err := est.Save(h, prior); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	m := newManager(t)
	entry, err := m.Acquire(testOwner, testID, testParams(), prior)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if entry.Handle().WindowCount() != h.WindowCount() {
		t.Fatalf("loaded window count: got %d want %d", entry.Handle().WindowCount(), h.WindowCount())
	}
	if entry.State() != accumulator.StateLoaded {
		t.Fatalf("state: got %s want loaded", entry.State())
	}
}

func TestAcquireMissingPriorStartsFresh(t *testing.T) {
	m := newManager(t)
	prior := filepath.Join(t.TempDir(), "missing"+psd.FileExtension)
	entry, err := m.Acquire(testOwner, testID, testParams(), prior)
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if entry.Handle().WindowCount() != 0 {
		t.Fatalf("fresh entry must be empty, got %d windows", entry.Handle().WindowCount())
	}
}

func TestAcquireRejectsForeignPrior(t *testing.T) {
	est := psd.NewEstimator()
	other := seed.NewID("GR", "FUR", "", "BHZ")
	h, err := est.New(other, testParams())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	prior := filepath.Join(t.TempDir(), "other"+psd.FileExtension)
	if err := est.Save(h, prior); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	m := newManager(t)
	if _, err := m.Acquire(testOwner, testID, testParams(), prior); err == nil {
		t.Fatal("expected error for prior file belonging to another source")
	}
}

func TestAddMarksEntryDirty(t *testing.T) {
	m := newManager(t)
	entry, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", time.Minute)
	absorbed, err := entry.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if !absorbed {
		t.Fatal("a full-length segment must absorb windows")
	}
	if entry.State() != accumulator.StateDirty {
		t.Fatalf("state: got %s want dirty", entry.State())
	}
	if entry.AdmittedSegments() != 1 {
		t.Fatalf("admitted: got %d want 1", entry.AdmittedSegments())
	}
}

// A segment shorter than one estimator window absorbs nothing; the entry
// stays clean and refuses to persist an empty artifact.
func TestAddShortSegmentStaysClean(t *testing.T) {
	m := newManager(t)
	entry, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", 5*time.Second)
	absorbed, err := entry.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if absorbed {
		t.Fatal("a sub-window segment must not absorb")
	}
	if entry.State() != accumulator.StateLoaded {
		t.Fatalf("state: got %s want loaded", entry.State())
	}
	if entry.AdmittedSegments() != 0 {
		t.Fatalf("admitted: got %d want 0", entry.AdmittedSegments())
	}

	path := filepath.Join(t.TempDir(), "short"+psd.FileExtension)
	err = entry.Persist(path)
	if !errors.Is(err, services.ErrNoDataAdmitted) {
		t.Fatalf("expected ErrNoDataAdmitted, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no file may be written, stat: %v", statErr)
	}
}

func TestAddTimeoutLeavesStateUntouched(t *testing.T) {
	m := newManager(t, accumulator.WithAddTimeout(time.Nanosecond))
	entry, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", time.Hour)
	_, err = entry.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if entry.State() != accumulator.StateLoaded {
		t.Fatalf("timed-out add must not dirty the entry, state %s", entry.State())
	}
	if entry.Handle().WindowCount() != 0 {
		t.Fatalf("timed-out add mutated the accumulator: %d windows", entry.Handle().WindowCount())
	}
}

// A run that admits no data for a source must not write an output file.
func TestPersistWithoutDataReportsNoDataAdmitted(t *testing.T) {
	m := newManager(t)
	entry, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "empty"+psd.FileExtension)
	err = entry.Persist(path)
	if !errors.Is(err, services.ErrNoDataAdmitted) {
		t.Fatalf("expected ErrNoDataAdmitted, got %v", err)
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("no file may be written for an empty accumulator, stat: %v", statErr)
	}
}

func TestPersistExactlyOnce(t *testing.T) {
	m := newManager(t)
	entry, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	seg := sineSegment(t, testID, "2023-05-01T00:00:00Z", time.Minute)
	if _, err := entry.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone)); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "acc"+psd.FileExtension)
	if err := entry.Persist(path); err != nil {
		t.Fatalf("Persist returned error: %v", err)
	}
	if entry.State() != accumulator.StatePersisted {
		t.Fatalf("state: got %s want persisted", entry.State())
	}
	if err := entry.Persist(path); err == nil {
		t.Fatal("expected error on second persist")
	}
	if _, err := entry.Add(context.Background(), seg, testCal, handling.ModeFor(handling.Hydrophone)); err == nil {
		t.Fatal("expected error adding to persisted entry")
	}
}

func TestPersistCollisionFailsOnlyThatEntry(t *testing.T) {
	dir := t.TempDir()
	collide := filepath.Join(dir, "taken"+psd.FileExtension)
	if err := os.WriteFile(collide, []byte("occupied"), 0o644); err != nil {
		t.Fatalf("seed collision file: %v", err)
	}

	m := newManager(t)
	otherID := seed.NewID("GR", "FUR", "", "BHZ")
	first, err := m.Acquire(testOwner, testID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire first: %v", err)
	}
	second, err := m.Acquire(testOwner, otherID, testParams(), "")
	if err != nil {
		t.Fatalf("Acquire second: %v", err)
	}
	for _, entry := range []*accumulator.Entry{first, second} {
		seg := sineSegment(t, entry.ID(), "2023-05-01T00:00:00Z", time.Minute)
		if _, err := entry.Add(context.Background(), seg, calibration.Calibration{ID: entry.ID(), Sensitivity: 1}, handling.ModeFor(handling.Hydrophone)); err != nil {
			t.Fatalf("Add %s: %v", entry.ID(), err)
		}
	}

	err = first.Persist(collide)
	if !errors.Is(err, services.ErrPersistence) {
		t.Fatalf("expected ErrPersistence on collision, got %v", err)
	}
	if first.State() != accumulator.StateFailed {
		t.Fatalf("collided entry state: got %s want failed", first.State())
	}

	path := filepath.Join(dir, "free"+psd.FileExtension)
	if err := second.Persist(path); err != nil {
		t.Fatalf("unrelated entry must still persist, got %v", err)
	}
}
