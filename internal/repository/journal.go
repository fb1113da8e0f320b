package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id is not in the journal.
var ErrNotFound = errors.New("session not found")

const (
	timeLayout    = time.RFC3339Nano
	statusRunning = "running"
)

// SessionRecord is one journal row.
type SessionRecord struct {
	ID         uuid.UUID  `json:"id"`
	Object     string     `json:"object"`
	T0         time.Time  `json:"t0"`
	Points     int        `json:"points"`
	Status     string     `json:"status"`
	Cursor     int        `json:"cursor"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Journal records session lifecycles.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

func NewJournal(db *sql.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Begin inserts a running session.
func (j *Journal) Begin(ctx context.Context, id uuid.UUID, object string, t0 time.Time, points int) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, object, t0, points, status, cursor, started_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`,
		id.String(),
		object,
		t0.UTC().Format(timeLayout),
		points,
		statusRunning,
		j.now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", id, err)
	}
	return nil
}

// Finish sets the final status and cursor.
func (j *Journal) Finish(ctx context.Context, id uuid.UUID, status string, cursor int) error {
	return j.update(ctx, `UPDATE sessions SET status = ?, cursor = ?, finished_at = ? WHERE id = ?`,
		id, status, cursor, j.now().UTC().Format(timeLayout), id.String())
}

func (j *Journal) update(ctx context.Context, q string, id uuid.UUID, args ...any) error {
	res, err := j.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, object, t0, points, status, cursor, started_at, finished_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec             SessionRecord
			id, t0, started string
			finished        sql.NullString
		)
		if err := rows.Scan(&id, &rec.Object, &t0, &rec.Points, &rec.Status, &rec.Cursor, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("session id %q: %w", id, err)
		}
		if rec.T0, err = time.Parse(timeLayout, t0); err != nil {
			return nil, fmt.Errorf("session %s t0: %w", id, err)
		}
		if rec.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("session %s started_at: %w", id, err)
		}
		if finished.Valid {
			ft, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("session %s finished_at: %w", id, err)
			}
			rec.FinishedAt = &ft
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}
