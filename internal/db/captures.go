package db

import (
	"context"
	"fmt"
	"time"
)

// Capture statuses.
const (
	StatusSaved       = "saved"
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// Capture is one ledger row describing a finished round.
type Capture struct {
	ID           int64
	RoundID      string
	Serial       string
	Status       string
	ErrorKind    string
	ErrorMessage string
	Path         string
	Width        int
	Height       int
	Samples      int
	StartedAt    time.Time
	FinishedAt   time.Time
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// RecordCapture inserts c into the ledger.
func (db *DB) RecordCapture(ctx context.Context, c Capture) error {
	if c.RoundID == "" {
		return fmt.Errorf("capture has no round id")
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO captures (
			round_id, serial, status, error_kind, error_message, path,
			width, height, samples, started_unix, finished_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RoundID, c.Serial, c.Status, c.ErrorKind, c.ErrorMessage, c.Path,
		c.Width, c.Height, c.Samples, toUnix(c.StartedAt), toUnix(c.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture %s: %w", c.RoundID, err)
	}
	return nil
}

// RecentCaptures returns up to limit rows, newest first.
func (db *DB) RecentCaptures(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx,
		`SELECT capture_id, round_id, serial, status, error_kind, error_message, path,
			width, height, samples, started_unix, finished_unix
		FROM captures
		ORDER BY started_unix DESC, capture_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		var c Capture
		var started, finished float64
		if err := rows.Scan(
			&c.ID, &c.RoundID, &c.Serial, &c.Status, &c.ErrorKind, &c.ErrorMessage, &c.Path,
			&c.Width, &c.Height, &c.Samples, &started, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		c.StartedAt = fromUnix(started)
		c.FinishedAt = fromUnix(finished)
		captures = append(captures, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return captures, nil
}

// CountByStatus returns the number of rows per status.
func (db *DB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM captures GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
