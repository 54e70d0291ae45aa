// Package db keeps a sqlite catalog of recording sessions.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/sync-recorder/internal/recorder"
	"github.com/banshee-data/sync-recorder/internal/session"
)

// Session status values.
const (
	StatusRecording = "recording"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrUnknownSession is returned when a session id is not in the catalog.
var ErrUnknownSession = errors.New("unknown session")

// DB is the session catalog.
type DB struct {
	*sql.DB
}

var _ session.Catalog = (*DB)(nil)

// SessionRecord is one catalog row.
type SessionRecord struct {
	ID               string
	Mode             recorder.Mode
	OutputDirectory  string
	ConfigSource     string
	StartTime        time.Time
	EndTime          *time.Time
	Frames           uint64
	EpochFrames      uint64
	BackgroundFrames uint64
	Status           string
	Error            string
}

// Duration returns the recording length, or zero for an open session.
func (r SessionRecord) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// NewDB opens (creating if needed) the catalog at path and migrates it to
// the latest schema.
func NewDB(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// BeginSession inserts a row for a session that has just started.
func (db *DB) BeginSession(ctx context.Context, s session.Summary) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (
			session_id, mode, output_directory, config_source, start_unix_nanos, status
		) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, string(s.Mode), s.OutputDirectory, s.ConfigSource, s.StartTime.UnixNano(), StatusRecording,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// EndSession stores the final counters of a session.
func (db *DB) EndSession(ctx context.Context, s session.Summary) error {
	status := StatusCompleted
	if s.Err != "" {
		status = StatusFailed
	}
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET
			end_unix_nanos = ?, total_frames = ?, epoch_frames = ?,
			background_frames = ?, status = ?, error = ?
		WHERE session_id = ?`,
		s.EndTime.UnixNano(), int64(s.Frames), int64(s.EpochFrames),
		int64(s.BackgroundFrames), status, s.Err, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, s.ID)
	}
	return nil
}

const sessionColumns = `session_id, mode, output_directory, config_source, start_unix_nanos,
	end_unix_nanos, total_frames, epoch_frames, background_frames, status, error`

// GetSession returns one session by id.
func (db *DB) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return rec, err
}

// ListSessions returns the most recent sessions first. A limit of zero or
// less returns all of them.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY start_unix_nanos DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*SessionRecord, error) {
	var (
		rec                        SessionRecord
		mode                       string
		start                      int64
		end                        sql.NullInt64
		frames, epochs, background int64
	)
	if err := s.Scan(&rec.ID, &mode, &rec.OutputDirectory, &rec.ConfigSource, &start,
		&end, &frames, &epochs, &background, &rec.Status, &rec.Error); err != nil {
		return nil, err
	}
	rec.Mode = recorder.Mode(mode)
	rec.StartTime = time.Unix(0, start).UTC()
	if end.Valid {
		t := time.Unix(0, end.Int64).UTC()
		rec.EndTime = &t
	}
	rec.Frames = uint64(frames)
	rec.EpochFrames = uint64(epochs)
	rec.BackgroundFrames = uint64(background)
	return &rec, nil
}
