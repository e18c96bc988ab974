package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/agent-eval/internal/config"
	"github.com/stellarlinkco/agent-eval/internal/conversation"
	"github.com/stellarlinkco/agent-eval/internal/stats"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return st
}

func testRun(id string, createdAt time.Time) *RunRecord {
	score := 1.0
	summary := &stats.RunSummary{
		Timestamp:        createdAt,
		TotalEvaluations: 1,
		Results: []conversation.Result{{
			ConversationGroup: "g1",
			TurnID:            "t1",
			MetricIdentifier:  "response_eval:sub-string",
			Status:            conversation.StatusPass,
			Score:             &score,
		}},
	}
	summary.SummaryStats.Overall = stats.CalculateBasicStats(summary.Results)
	return &RunRecord{
		ID:               id,
		CreatedAt:        createdAt,
		TotalEvaluations: 1,
		Pass:             1,
		Summary:          summary,
	}
}

func TestSQLiteStore_SaveAndGetRun(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)

	if err := st.SaveRun(ctx, testRun("run_1", createdAt)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != "run_1" {
		t.Fatalf("ID: got %q", got.ID)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("CreatedAt: got %v want %v", got.CreatedAt, createdAt)
	}
	if got.TotalEvaluations != 1 || got.Pass != 1 || got.Fail != 0 || got.Error != 0 {
		t.Fatalf("counters: %+v", got)
	}
	if got.Summary == nil {
		t.Fatalf("Summary: got nil")
	}
	if len(got.Summary.Results) != 1 {
		t.Fatalf("Summary.Results: got %d", len(got.Summary.Results))
	}
	r := got.Summary.Results[0]
	if r.MetricIdentifier != "response_eval:sub-string" || r.Status != conversation.StatusPass {
		t.Fatalf("round-tripped result: %+v", r)
	}
	if r.Score == nil || *r.Score != 1.0 {
		t.Fatalf("round-tripped score: %v", r.Score)
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "run_missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("GetRun: got %v, want sql.ErrNoRows", err)
	}
}

func TestSQLiteStore_SaveRunValidation(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, nil); err == nil {
		t.Fatalf("expected error for nil run")
	}
	if err := st.SaveRun(ctx, &RunRecord{ID: " ", Summary: &stats.RunSummary{}}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := st.SaveRun(ctx, &RunRecord{ID: "run_1"}); err == nil {
		t.Fatalf("expected error for nil summary")
	}

	run := testRun("run_dup", time.Now().UTC())
	if err := st.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, run); err == nil {
		t.Fatalf("expected error for duplicate id")
	}
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"run_a", "run_b", "run_c"} {
		if err := st.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := st.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("ListRuns: got %d runs", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run_c" || runs[2].ID != "run_a" {
		t.Fatalf("order: got %s..%s", runs[0].ID, runs[2].ID)
	}

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns limit: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run_c" {
		t.Fatalf("limit: got %d runs, first %s", len(runs), runs[0].ID)
	}

	runs, err = st.ListRuns(ctx, RunFilter{Since: base.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("ListRuns since: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("since: got %d runs", len(runs))
	}

	runs, err = st.ListRuns(ctx, RunFilter{Until: base.Add(30 * time.Minute)})
	if err != nil {
		t.Fatalf("ListRuns until: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run_a" {
		t.Fatalf("until: got %d runs", len(runs))
	}
}

func TestSQLiteStore_LatestRuns(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"run_a", "run_b", "run_c"} {
		if err := st.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}

	runs, err := st.LatestRuns(ctx, 2)
	if err != nil {
		t.Fatalf("LatestRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run_c" || runs[1].ID != "run_b" {
		t.Fatalf("LatestRuns: got %+v", runs)
	}
}

func TestOpen_Dispatch(t *testing.T) {
	t.Parallel()

	if _, err := Open(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	cfg := &config.Config{}
	cfg.Storage.Type = "memory"
	st, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	defer st.Close()

	cfg2 := &config.Config{}
	cfg2.Storage.Type = "postgres"
	if _, err := Open(cfg2); err == nil {
		t.Fatalf("expected error for unsupported type")
	}

	cfg3 := &config.Config{}
	cfg3.Storage.Type = "sqlite"
	cfg3.Storage.Path = filepath.Join(t.TempDir(), "nested", "dir", "runs.db")
	st3, err := Open(cfg3)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer st3.Close()
}
