package rally

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunRecord describes one completed processing run in the rally_runs table.
type RunRecord struct {
	RunID         string  `json:"run_id"`
	SourcePath    string  `json:"source_path"`
	StartedUnix   float64 `json:"started_unix"`
	FinishedUnix  float64 `json:"finished_unix"`
	VideoDuration float64 `json:"video_duration"`
	Frames        int     `json:"frames"`
	Detections    int     `json:"detections"`
	Rallies       int     `json:"rallies"`
	KeepSegments  int     `json:"keep_segments"`
	KeepSeconds   float64 `json:"keep_seconds"`
	ExportedPath  string  `json:"exported_path,omitempty"`
}

// SegmentStore handles database operations for rally_runs and
// rally_segments.
type SegmentStore struct {
	db *sql.DB
}

// NewSegmentStore creates a store over an open database handle.
func NewSegmentStore(db *sql.DB) *SegmentStore {
	return &SegmentStore{db: db}
}

// InitSchema creates the store's tables if they do not exist.
func (s *SegmentStore) InitSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rally_runs (
			run_id TEXT PRIMARY KEY,
			source_path TEXT NOT NULL,
			started_unix DOUBLE NOT NULL,
			finished_unix DOUBLE NOT NULL,
			video_duration DOUBLE NOT NULL,
			frames INTEGER NOT NULL,
			detections INTEGER NOT NULL,
			rallies INTEGER NOT NULL,
			keep_segments INTEGER NOT NULL,
			keep_seconds DOUBLE NOT NULL,
			exported_path TEXT
		);
		CREATE TABLE IF NOT EXISTS rally_segments (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			start_s DOUBLE NOT NULL,
			end_s DOUBLE NOT NULL,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES rally_runs(run_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create rally tables: %w", err)
	}
	return nil
}

// RecordRun persists one run and its keep-list in a single transaction.
// It assigns and returns the run ID.
func (s *SegmentStore) RecordRun(rec *RunRecord, keep []TimeRange) (string, error) {
	if rec.RunID == "" {
		rec.RunID = uuid.New().String()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rally_runs (
			run_id, source_path, started_unix, finished_unix,
			video_duration, frames, detections, rallies,
			keep_segments, keep_seconds, exported_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.SourcePath, rec.StartedUnix, rec.FinishedUnix,
		rec.VideoDuration, rec.Frames, rec.Detections, rec.Rallies,
		rec.KeepSegments, rec.KeepSeconds, rec.ExportedPath,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, r := range keep {
		if _, err := tx.Exec(
			`INSERT INTO rally_segments (run_id, seq, start_s, end_s) VALUES (?, ?, ?, ?)`,
			rec.RunID, i, r.Start, r.End,
		); err != nil {
			return "", fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return rec.RunID, nil
}

// Segments retrieves the keep-list of a run in ascending order.
func (s *SegmentStore) Segments(runID string) ([]TimeRange, error) {
	rows, err := s.db.Query(
		`SELECT start_s, end_s FROM rally_segments WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var out []TimeRange
	for rows.Next() {
		var r TimeRange
		if err := rows.Scan(&r.Start, &r.End); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRuns retrieves the most recent runs, newest first.
func (s *SegmentStore) ListRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT run_id, source_path, started_unix, finished_unix,
			video_duration, frames, detections, rallies,
			keep_segments, keep_seconds, COALESCE(exported_path, '')
		FROM rally_runs ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		if err := rows.Scan(
			&rec.RunID, &rec.SourcePath, &rec.StartedUnix, &rec.FinishedUnix,
			&rec.VideoDuration, &rec.Frames, &rec.Detections, &rec.Rallies,
			&rec.KeepSegments, &rec.KeepSeconds, &rec.ExportedPath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewRunRecord builds a RunRecord from a finished pipeline result.
func NewRunRecord(srcPath string, started, finished time.Time, res *RunResult) *RunRecord {
	return &RunRecord{
		SourcePath:    srcPath,
		StartedUnix:   float64(started.UnixNano()) / 1e9,
		FinishedUnix:  float64(finished.UnixNano()) / 1e9,
		VideoDuration: res.Stats.VideoDuration,
		Frames:        res.Stats.FramesProcessed,
		Detections:    res.Stats.Detections,
		Rallies:       res.Stats.Rallies,
		KeepSegments:  res.Stats.KeepSegments,
		KeepSeconds:   res.Stats.KeepSeconds,
		ExportedPath:  res.Exported,
	}
}
