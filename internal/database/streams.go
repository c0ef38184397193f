package database

import (
	"database/sql"
	"fmt"
	"time"
)

// RecordStreamChecks stores the channel outcomes of a stream run.
func (db *DB) RecordStreamChecks(runID string, checks []StreamCheck) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO stream_checks
		(run_id, stream_id, display_name, is_live, video_id, title, match_score, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range checks {
		checked := c.CheckedAt
		if checked.IsZero() {
			checked = time.Now()
		}
		if _, err := stmt.Exec(runID, c.StreamID, c.DisplayName, c.IsLive, c.VideoID, c.Title,
			c.MatchScore, checked.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("recording check for %s: %w", c.StreamID, err)
		}
	}
	return tx.Commit()
}

// LatestStreamChecks returns the checks of the most recent run that
// recorded any, in the order they were stored.
func (db *DB) LatestStreamChecks() ([]StreamCheck, error) {
	rows, err := db.conn.Query(`
SELECT c.run_id, c.stream_id, c.display_name, c.is_live, c.video_id, c.title, c.match_score, c.checked_at
FROM stream_checks c
WHERE c.run_id = (
    SELECT r.id FROM runs r
    WHERE EXISTS (SELECT 1 FROM stream_checks s WHERE s.run_id = r.id)
    ORDER BY r.started_at DESC LIMIT 1
)
ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checks []StreamCheck
	for rows.Next() {
		var (
			c       StreamCheck
			name    sql.NullString
			checked string
		)
		if err := rows.Scan(&c.RunID, &c.StreamID, &name, &c.IsLive, &c.VideoID, &c.Title,
			&c.MatchScore, &checked); err != nil {
			return nil, err
		}
		c.DisplayName = name.String
		t, err := time.Parse(timeLayout, checked)
		if err != nil {
			return nil, fmt.Errorf("stream check %s: bad checked_at: %w", c.StreamID, err)
		}
		c.CheckedAt = t
		checks = append(checks, c)
	}
	return checks, rows.Err()
}
