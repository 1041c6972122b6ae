package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"term-deposit/internal/common"
	"term-deposit/internal/ml"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	// Check if database file was created
	dbPath := filepath.Join(tempDir, common.HistoryDBFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "nested")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Test closing already closed store
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(started time.Time) *RunRecord {
	return &RunRecord{
		StartedAt:   started,
		FinishedAt:  started.Add(42 * time.Second),
		DatasetPath: "data/dataset.csv",
		Rows:        4521,
		Positives:   521,
		Config:      ml.SearchConfig{NIter: 10, KFolds: 5, TestRatio: 0.2, Seed: 42, Workers: 4},
		Version:     ml.NewVersionID(started),
		Result: &ml.SearchResult{
			BestIndex:       3,
			BestParams:      ml.DefaultParams(),
			BestCVScore:     0.91,
			TestScore:       0.9,
			ImbalanceWeight: 7.68,
			TrainRows:       3617,
			TestRows:        904,
			Trials: []ml.Trial{
				{Index: 0, Params: ml.DefaultParams(), FoldScores: []float64{0.9, 0.91}, MeanScore: 0.905},
			},
		},
	}
}

func TestStore_SaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	run := sampleRun(started)
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	if run.ID == "" {
		t.Fatal("Expected SaveRun to assign an ID")
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected start %v, got %v", started, got.StartedAt)
	}
	if got.Version != "20260501-100000" {
		t.Errorf("Expected version 20260501-100000, got %s", got.Version)
	}
	if !got.Succeeded() {
		t.Error("Expected run to be successful")
	}
	if got.Result.BestCVScore != 0.91 || got.Result.BestIndex != 3 {
		t.Errorf("Unexpected result: %+v", got.Result)
	}
	if len(got.Result.Trials) != 1 || got.Result.Trials[0].FoldScores[1] != 0.91 {
		t.Errorf("Trials not persisted: %+v", got.Result.Trials)
	}
	if got.Config.KFolds != 5 {
		t.Errorf("Expected k_folds 5, got %d", got.Config.KFolds)
	}
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun("does-not-exist")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_SaveRunReplaces(t *testing.T) {
	store := newTestStore(t)
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	run := &RunRecord{StartedAt: started, DatasetPath: "data/dataset.csv"}
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}

	run.Error = "search aborted"
	run.FinishedAt = started.Add(time.Second)
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("Failed to update run: %v", err)
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run after replace, got %d", len(runs))
	}
	if runs[0].Succeeded() || runs[0].Error != "search aborted" {
		t.Errorf("Expected failed run, got %+v", runs[0])
	}
}

func TestStore_SaveRunRequiresStartTime(t *testing.T) {
	store := newTestStore(t)

	if err := store.SaveRun(&RunRecord{}); err == nil {
		t.Error("Expected error for run without start time")
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := store.SaveRun(sampleRun(base.Add(time.Duration(i) * time.Hour))); err != nil {
			t.Fatalf("Failed to save run %d: %v", i, err)
		}
	}

	all, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 runs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i-1].StartedAt.After(all[i].StartedAt) {
			t.Errorf("Runs not ordered newest first at %d", i)
		}
	}

	latest, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(latest))
	}
	if !latest[0].StartedAt.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("Expected newest run first, got %v", latest[0].StartedAt)
	}
}

func TestStore_GetRunsInRange(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		if err := store.SaveRun(sampleRun(base.Add(time.Duration(i) * time.Hour))); err != nil {
			t.Fatalf("Failed to save run %d: %v", i, err)
		}
	}

	runs, err := store.GetRunsInRange(base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("Failed to query range: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs in inclusive range, got %d", len(runs))
	}
	if !runs[0].StartedAt.Equal(base.Add(time.Hour)) || !runs[2].StartedAt.Equal(base.Add(3*time.Hour)) {
		t.Errorf("Unexpected range bounds: %v .. %v", runs[0].StartedAt, runs[2].StartedAt)
	}

	empty, err := store.GetRunsInRange(base.Add(24*time.Hour), base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("Failed to query empty range: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no runs, got %d", len(empty))
	}
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	run := sampleRun(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err := store.SaveRun(run); err != nil {
		t.Fatalf("Failed to save run: %v", err)
	}
	store.Close()

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.GetRun(run.ID); err != nil {
		t.Errorf("Run lost after reopen: %v", err)
	}
}
