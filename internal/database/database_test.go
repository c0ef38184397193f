package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/newsops/internal/logger"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logger.Discard())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func TestStartAndFinishRun(t *testing.T) {
	db := openTestDB(t)
	id, err := db.StartRun("images")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a run ID")
	}

	run, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != StatusRunning || run.FinishedAt != nil {
		t.Errorf("expected running run, got %q finished=%v", run.Status, run.FinishedAt)
	}

	if err := db.FinishRun(id, "3 downloaded", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, _ = db.GetRun(id)
	if run.Status != StatusOK {
		t.Errorf("expected status ok, got %q", run.Status)
	}
	if run.Summary == nil || *run.Summary != "3 downloaded" {
		t.Errorf("unexpected summary %v", run.Summary)
	}
	if run.Error != nil {
		t.Errorf("expected no error, got %q", *run.Error)
	}
	if run.FinishedAt == nil || run.Duration() < 0 {
		t.Error("expected finished_at to be set")
	}
}

func TestFinishRunFailed(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.StartRun("streams")
	if err := db.FinishRun(id, "", errors.New("api key missing")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run, _ := db.GetRun(id)
	if run.Status != StatusFailed {
		t.Errorf("expected failed, got %q", run.Status)
	}
	if run.Error == nil || *run.Error != "api key missing" {
		t.Errorf("unexpected error text %v", run.Error)
	}
}

func TestFinishUnknownRun(t *testing.T) {
	db := openTestDB(t)
	if err := db.FinishRun("does-not-exist", "", nil); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil run")
	}
}

func TestLastRunsOnePerJob(t *testing.T) {
	db := openTestDB(t)
	first, _ := db.StartRun("maintain")
	db.FinishRun(first, "first", nil)
	time.Sleep(2 * time.Millisecond)
	second, _ := db.StartRun("maintain")
	db.FinishRun(second, "second", nil)
	imgs, _ := db.StartRun("images")

	runs, err := db.LastRuns()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Job != "images" || runs[0].ID != imgs {
		t.Errorf("expected images run first, got %s/%s", runs[0].Job, runs[0].ID)
	}
	if runs[1].ID != second {
		t.Errorf("expected latest maintain run %s, got %s", second, runs[1].ID)
	}
}

func TestStreamChecks(t *testing.T) {
	db := openTestDB(t)

	old, _ := db.StartRun("streams")
	if err := db.RecordStreamChecks(old, []StreamCheck{{StreamID: "nhk"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(2 * time.Millisecond)

	latest, _ := db.StartRun("streams")
	checks := []StreamCheck{
		{StreamID: "nhk", DisplayName: "NHK", IsLive: true, VideoID: ptr("v1"), Title: ptr("ニュース"), MatchScore: 2},
		{StreamID: "tbs", DisplayName: "TBS"},
	}
	if err := db.RecordStreamChecks(latest, checks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A later run without checks does not hide the latest checks.
	db.StartRun("streams")

	got, err := db.LatestStreamChecks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(got))
	}
	if got[0].RunID != latest || !got[0].IsLive || got[0].VideoID == nil || *got[0].VideoID != "v1" {
		t.Errorf("unexpected first check %+v", got[0])
	}
	if got[1].IsLive || got[1].VideoID != nil || got[1].Title != nil {
		t.Errorf("expected offline second check, got %+v", got[1])
	}
	if got[0].CheckedAt.IsZero() {
		t.Error("expected checked_at to be set")
	}
}

func TestLatestStreamChecksEmpty(t *testing.T) {
	db := openTestDB(t)
	got, err := db.LatestStreamChecks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no checks, got %d", len(got))
	}
}

func TestRecordStreamChecksUnknownRun(t *testing.T) {
	db := openTestDB(t)
	err := db.RecordStreamChecks("missing", []StreamCheck{{StreamID: "nhk"}})
	if err == nil {
		t.Error("expected foreign key error")
	}
}

func TestLedgerWithoutDatabase(t *testing.T) {
	l := NewLedger(nil, logger.Discard())
	id := l.Start("images")
	if id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
	l.Finish(id, "ignored", nil)
	l.StreamChecks(id, nil)

	var nilLedger *Ledger
	nilLedger.Finish("x", "", nil)
}

func TestLedgerSwallowsErrors(t *testing.T) {
	db := openTestDB(t)
	l := NewLedger(db, logger.Discard())

	id := l.Start("streams")
	if id == "" {
		t.Fatal("expected run id")
	}
	l.StreamChecks(id, []StreamCheck{{StreamID: "nhk", IsLive: true}})
	l.Finish(id, "1 live", nil)

	db.Close()
	if got := l.Start("streams"); got != "" {
		t.Errorf("expected empty id on closed db, got %q", got)
	}
	l.Finish(id, "after close", nil)
}
