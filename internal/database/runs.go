package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed-width UTC timestamps so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// StartRun records the start of a job run and returns its ID.
func (db *DB) StartRun(job string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, job, started_at, status) VALUES (?, ?, ?, ?)",
		id, job, time.Now().UTC().Format(timeLayout), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun marks a run finished. A non-nil runErr marks it failed.
func (db *DB) FinishRun(id, summary string, runErr error) error {
	status := StatusOK
	var errText *string
	if runErr != nil {
		status = StatusFailed
		msg := runErr.Error()
		errText = &msg
	}

	res, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, status = ?, summary = ?, error = ? WHERE id = ?",
		time.Now().UTC().Format(timeLayout), status, summary, errText, id,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun returns a run by ID, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow(
		"SELECT id, job, started_at, finished_at, status, summary, error FROM runs WHERE id = ?", id,
	)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// LastRuns returns the most recent run of every job, ordered by job name.
func (db *DB) LastRuns() ([]Run, error) {
	rows, err := db.conn.Query(`
SELECT id, job, started_at, finished_at, status, summary, error
FROM runs r
WHERE started_at = (SELECT MAX(started_at) FROM runs WHERE job = r.job)
ORDER BY job`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Job, &started, &finished, &r.Status, &r.Summary, &r.Error); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", r.ID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		t, err := time.Parse(timeLayout, finished.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad finished_at: %w", r.ID, err)
		}
		r.FinishedAt = &t
	}
	return &r, nil
}
