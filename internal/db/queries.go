package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL statements used by the bot.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const insertActionID = `
INSERT INTO action_ids (kind, subject_id) VALUES (?, ?)
ON CONFLICT (kind, subject_id) DO NOTHING
`

// InsertActionID records a subject id for an action kind.
func (q *Queries) InsertActionID(ctx context.Context, kind, subjectID string) error {
	_, err := q.db.ExecContext(ctx, insertActionID, kind, subjectID)
	return err
}

const listActionIDs = `
SELECT subject_id FROM action_ids WHERE kind = ? ORDER BY created_at, subject_id
`

// ListActionIDs returns every subject id recorded for kind.
func (q *Queries) ListActionIDs(ctx context.Context, kind string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listActionIDs, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countActionIDs = `
SELECT COUNT(*) FROM action_ids WHERE kind = ?
`

// CountActionIDs returns the number of subject ids recorded for kind.
func (q *Queries) CountActionIDs(ctx context.Context, kind string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActionIDs, kind).Scan(&count)
	return count, err
}

const getState = `
SELECT value FROM bot_state WHERE key = ?
`

// ErrStateNotFound is returned by GetState for unknown keys.
var ErrStateNotFound = errors.New("state key not found")

// GetState returns the value stored under key.
func (q *Queries) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, getState, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrStateNotFound, key)
	}
	return value, err
}

const setState = `
INSERT INTO bot_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`

// SetState upserts the value stored under key.
func (q *Queries) SetState(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, setState, key, value)
	return err
}
