package rally

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) *SegmentStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewSegmentStore(db)
	if err := store.InitSchema(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return store
}

func TestSegmentStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)

	keep := []TimeRange{
		{Start: 2.1, End: 8.0},
		{Start: 14.5, End: 21.0},
	}
	rec := &RunRecord{
		SourcePath:    "court.mp4",
		StartedUnix:   1000,
		FinishedUnix:  1012.5,
		VideoDuration: 600,
		Frames:        18000,
		Detections:    5400,
		Rallies:       2,
		KeepSegments:  len(keep),
		KeepSeconds:   12.4,
		ExportedPath:  "court_rallies.mp4",
	}

	runID, err := store.RecordRun(rec, keep)
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if runID == "" {
		t.Fatal("RecordRun returned empty run ID")
	}

	got, err := store.Segments(runID)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if diff := cmp.Diff(keep, got); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if diff := cmp.Diff(rec, runs[0]); diff != "" {
		t.Errorf("run record mismatch (-want +got):\n%s", diff)
	}
}

func TestSegmentStoreListsNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		rec := &RunRecord{
			SourcePath:  "court.mp4",
			StartedUnix: float64(1000 + i),
		}
		if _, err := store.RecordRun(rec, []TimeRange{{Start: 0, End: 1}}); err != nil {
			t.Fatalf("RecordRun %d: %v", i, err)
		}
	}

	runs, err := store.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want limit of 2", len(runs))
	}
	if runs[0].StartedUnix < runs[1].StartedUnix {
		t.Errorf("runs not newest first: %v then %v", runs[0].StartedUnix, runs[1].StartedUnix)
	}
}

func TestSegmentStoreEmptySegments(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Segments("no-such-run")
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d segments for unknown run, want 0", len(got))
	}
}

func TestNewRunRecordFromResult(t *testing.T) {
	started := time.Unix(1700000000, 0)
	finished := started.Add(12 * time.Second)
	res := &RunResult{
		Keep: []TimeRange{{Start: 1, End: 4}},
		Stats: RunStats{
			FramesProcessed: 300,
			Detections:      120,
			Rallies:         1,
			KeepSegments:    1,
			KeepSeconds:     3,
			VideoDuration:   10,
		},
		Exported: "out.mp4",
	}

	rec := NewRunRecord("court.mp4", started, finished, res)
	if rec.SourcePath != "court.mp4" || rec.Frames != 300 || rec.Rallies != 1 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.FinishedUnix-rec.StartedUnix != 12 {
		t.Errorf("duration = %v, want 12", rec.FinishedUnix-rec.StartedUnix)
	}
	if rec.ExportedPath != "out.mp4" {
		t.Errorf("ExportedPath = %q", rec.ExportedPath)
	}
}
