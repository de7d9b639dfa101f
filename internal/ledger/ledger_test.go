package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"specbatch/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, 4)
	if err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected a run id")
	}
	if run.Status != ledger.RunStatusRunning {
		t.Fatalf("status: got %s want running", run.Status)
	}

	if err := store.FinishRun(ctx, run.ID, ledger.RunStatusCompleted); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	runs, err := store.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("run count: got %d want 1", len(runs))
	}
	if runs[0].Status != ledger.RunStatusCompleted {
		t.Fatalf("final status: got %s want completed", runs[0].Status)
	}
	if runs[0].FinishedAt.IsZero() {
		t.Fatal("expected finished_at to be set")
	}
	if runs[0].Workers != 4 {
		t.Fatalf("workers: got %d want 4", runs[0].Workers)
	}
}

func TestRecordJobRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, 1)
	if err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}

	started := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	jobs := []ledger.Job{
		{
			RunID:      run.ID,
			Source:     "station_calc.toml",
			Kind:       "compute",
			Status:     ledger.JobStatusSucceeded,
			Outputs:    []string{"out/PPSD_BW.RJOB..EHZ_202305010000.ppsd.json"},
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
		},
		{
			RunID:      run.ID,
			Source:     "quiet_calc.toml",
			Kind:       "compute",
			Status:     ledger.JobStatusFailed,
			Reason:     "NoDataAdmitted",
			Detail:     "every segment rejected by daily window",
			StartedAt:  started.Add(time.Minute),
			FinishedAt: started.Add(2 * time.Minute),
		},
	}
	for _, job := range jobs {
		if err := store.RecordJob(ctx, job); err != nil {
			t.Fatalf("RecordJob returned error: %v", err)
		}
	}

	got, err := store.Jobs(ctx, run.ID)
	if err != nil {
		t.Fatalf("Jobs returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("job count: got %d want 2", len(got))
	}
	if got[0].Source != "station_calc.toml" || got[1].Source != "quiet_calc.toml" {
		t.Fatalf("insertion order lost: %s, %s", got[0].Source, got[1].Source)
	}
	if len(got[0].Outputs) != 1 || got[0].Outputs[0] != jobs[0].Outputs[0] {
		t.Fatalf("outputs: got %v", got[0].Outputs)
	}
	if got[1].Reason != "NoDataAdmitted" {
		t.Fatalf("reason: got %q", got[1].Reason)
	}
	if !got[0].StartedAt.Equal(started) {
		t.Fatalf("started_at: got %s want %s", got[0].StartedAt, started)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")
	ctx := context.Background()

	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	run, err := store.BeginRun(ctx, 2)
	if err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.Runs(ctx, 5)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("expected the original run to survive reopen, got %v", runs)
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "runs.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()
	if store.Path() != path {
		t.Fatalf("path: got %s want %s", store.Path(), path)
	}
}
