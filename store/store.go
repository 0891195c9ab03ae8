// Package store keeps recorded takes in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/pipelined/piano/timeline"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// ErrTakeNotFound is returned when there is no take with requested id.
var ErrTakeNotFound = errors.New("take not found")

const schema = `
	CREATE TABLE IF NOT EXISTS takes (
		id TEXT PRIMARY KEY,
		createdAt REAL NOT NULL,
		duration REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		takeId TEXT NOT NULL REFERENCES takes(id) ON DELETE CASCADE,
		sequenceNumber INTEGER NOT NULL,
		note TEXT NOT NULL,
		time REAL NOT NULL,
		PRIMARY KEY(takeId, sequenceNumber)
	);
`

// Take is a stored timeline.
type Take struct {
	ID        string
	CreatedAt time.Time
	Timeline  timeline.Timeline
}

// Summary describes a take without its events.
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Notes     int       `json:"notes"`
	// Duration is the time of the latest onset in seconds.
	Duration float64 `json:"duration"`
}

// Store provides access to the takes database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and creates the schema if needed.
func Open(path string) (*Store, error) {
	dsn := path
	if path != Memory {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == Memory {
		// every connection gets its own memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the timeline as a new take.
func (s *Store) Save(ctx context.Context, tl timeline.Timeline) (Take, error) {
	if tl.Empty() {
		return Take{}, timeline.ErrEmptyTimeline
	}
	take := Take{
		ID:        xid.New().String(),
		CreatedAt: s.now().UTC(),
		Timeline:  tl,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Take{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO takes (id, createdAt, duration) VALUES (?, ?, ?)`,
		take.ID, unixFromTime(take.CreatedAt), tl.End()); err != nil {
		return Take{}, fmt.Errorf("insert take: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (takeId, sequenceNumber, note, time) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return Take{}, fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()
	for i, e := range tl.Events() {
		if _, err := stmt.ExecContext(ctx, take.ID, i, e.Note, e.Time); err != nil {
			return Take{}, fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Take{}, fmt.Errorf("commit: %w", err)
	}
	return take, nil
}

// List returns summaries of all takes, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.createdAt, t.duration, COUNT(e.takeId)
		FROM takes t
		LEFT JOIN events e ON e.takeId = t.id
		GROUP BY t.id
		ORDER BY t.createdAt DESC, t.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query takes: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var (
			sum       Summary
			createdAt float64
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.Duration, &sum.Notes); err != nil {
			return nil, fmt.Errorf("scan take: %w", err)
		}
		sum.CreatedAt = timeFromUnix(createdAt)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Get returns the take with its timeline.
func (s *Store) Get(ctx context.Context, id string) (Take, error) {
	var createdAt float64
	err := s.db.QueryRowContext(ctx, `SELECT createdAt FROM takes WHERE id = ?`, id).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Take{}, fmt.Errorf("%w: %v", ErrTakeNotFound, id)
	}
	if err != nil {
		return Take{}, fmt.Errorf("scan take: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT note, time
		FROM events
		WHERE takeId = ?
		ORDER BY sequenceNumber ASC
	`, id)
	if err != nil {
		return Take{}, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []timeline.NoteEvent
	for rows.Next() {
		var e timeline.NoteEvent
		if err := rows.Scan(&e.Note, &e.Time); err != nil {
			return Take{}, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return Take{}, err
	}
	return Take{
		ID:        id,
		CreatedAt: timeFromUnix(createdAt),
		Timeline:  timeline.New(events...),
	}, nil
}

// Delete removes the take.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM takes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete take: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %v", ErrTakeNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE takeId = ?`, id); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return tx.Commit()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(v float64) time.Time {
	return time.Unix(0, int64(v*1e9)).UTC()
}
