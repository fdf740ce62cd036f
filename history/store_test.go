// ABOUTME: Tests for the run history store: schema, upserts, queries, and ordering.
// ABOUTME: Exercises a real sqlite file per test via t.TempDir, no mocks.
package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/2389-research/railcar/history"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStartRunAndList(t *testing.T) {
	store := openTestStore(t)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.StartRun("run-1", "build-and-test", started); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.RunID != "run-1" || r.Workflow != "build-and-test" {
		t.Errorf("run row = %+v", r)
	}
	if r.Status != history.StatusRunning {
		t.Errorf("status = %q", r.Status)
	}
	if r.FinishedAt != nil {
		t.Errorf("finished_at = %v, want nil", *r.FinishedAt)
	}
}

func TestStartRunIdempotent(t *testing.T) {
	store := openTestStore(t)

	at := time.Now()
	if err := store.StartRun("run-1", "wf", at); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.StartRun("run-1", "wf", at); err != nil {
		t.Fatalf("StartRun again: %v", err)
	}

	runs, err := store.ListRuns(0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run after duplicate start, got %d", len(runs))
	}
}

func TestFinishRun(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun("run-1", "wf", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	msg := `step "deploy" failed`
	if err := store.FinishRun("run-1", history.StatusFailed, &msg, time.Now()); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, _, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run == nil {
		t.Fatal("run not found")
	}
	if run.Status != history.StatusFailed {
		t.Errorf("status = %q", run.Status)
	}
	if run.Error == nil || *run.Error != msg {
		t.Errorf("error = %v", run.Error)
	}
	if run.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestStepLifecycle(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun("run-1", "wf", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.StartStep("run-1", "build", time.Now()); err != nil {
		t.Fatalf("StartStep: %v", err)
	}
	if err := store.FinishStep("run-1", "build", history.StatusCompleted, nil, time.Now()); err != nil {
		t.Fatalf("FinishStep: %v", err)
	}
	if err := store.StartStep("run-1", "test", time.Now()); err != nil {
		t.Fatalf("StartStep: %v", err)
	}
	detail := "exit status 2"
	if err := store.FinishStep("run-1", "test", history.StatusFailed, &detail, time.Now()); err != nil {
		t.Fatalf("FinishStep: %v", err)
	}

	_, steps, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Step != "build" || steps[1].Step != "test" {
		t.Errorf("step order = %q, %q", steps[0].Step, steps[1].Step)
	}
	if steps[0].Status != history.StatusCompleted {
		t.Errorf("build status = %q", steps[0].Status)
	}
	if steps[0].StartedAt == nil || steps[0].FinishedAt == nil {
		t.Error("build timestamps missing")
	}
	if steps[1].Status != history.StatusFailed {
		t.Errorf("test status = %q", steps[1].Status)
	}
	if steps[1].Detail == nil || *steps[1].Detail != detail {
		t.Errorf("test detail = %v", steps[1].Detail)
	}
}

// Steps can fail before they start (condition errors, data-flow resolution
// errors); FinishStep must create the row.
func TestFinishStepWithoutStart(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun("run-1", "wf", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	detail := "condition evaluation failed"
	if err := store.FinishStep("run-1", "gated", history.StatusFailed, &detail, time.Now()); err != nil {
		t.Fatalf("FinishStep: %v", err)
	}

	_, steps, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}
	if steps[0].StartedAt != nil {
		t.Errorf("started_at = %v, want nil", *steps[0].StartedAt)
	}
	if steps[0].Status != history.StatusFailed {
		t.Errorf("status = %q", steps[0].Status)
	}
}

func TestBumpStepRetries(t *testing.T) {
	store := openTestStore(t)

	if err := store.StartRun("run-1", "wf", time.Now()); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.StartStep("run-1", "flaky", time.Now()); err != nil {
		t.Fatalf("StartStep: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.BumpStepRetries("run-1", "flaky"); err != nil {
			t.Fatalf("BumpStepRetries: %v", err)
		}
	}

	_, steps, err := store.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if steps[0].Retries != 2 {
		t.Errorf("retries = %d, want 2", steps[0].Retries)
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		if err := store.StartRun(id, "wf", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("StartRun %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-c" || runs[1].RunID != "run-b" {
		t.Errorf("order = %q, %q", runs[0].RunID, runs[1].RunID)
	}
}

func TestGetRunUnknown(t *testing.T) {
	store := openTestStore(t)

	run, steps, err := store.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run != nil || steps != nil {
		t.Errorf("expected nil results for unknown run, got %v / %v", run, steps)
	}
}
