package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wakewatch/internal/session"
)

// ErrNotFound is returned when a session id has no history row.
var ErrNotFound = errors.New("db: session not found")

// DefaultListLimit caps Sessions when the caller passes no limit.
const DefaultListLimit = 100

var _ session.Store = (*DB)(nil)

// InsertSession stores a finished session summary.
func (db *DB) InsertSession(ctx context.Context, r session.Record) error {
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("encode detector config: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO wake_sessions (
			session_id, source, outcome, started_unix_nanos, ended_unix_nanos,
			frames_scored, motion_frames, invalid_frames, excluded_pixels,
			peak_progress, qualifying_mean, qualifying_stddev, config_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Source, string(r.Outcome),
		r.StartedAt.UnixNano(), r.EndedAt.UnixNano(),
		int64(r.FramesScored), int64(r.MotionFrames), int64(r.InvalidFrames), r.ExcludedPixels,
		r.PeakProgress, r.QualifyingMean, r.QualifyingStdDev, string(cfg),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", r.ID, err)
	}
	return nil
}

// InsertProgress stores a session's progress timeline in one transaction.
func (db *DB) InsertProgress(ctx context.Context, id uuid.UUID, points []session.ProgressPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wake_progress (session_id, seq, at_unix_nanos, progress, success_count)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	sid := id.String()
	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, sid, int64(p.Seq), p.At.UnixNano(), p.Progress, p.SuccessCount); err != nil {
			return fmt.Errorf("insert progress %s seq=%d: %w", id, p.Seq, err)
		}
	}
	return tx.Commit()
}

const sessionColumns = `session_id, source, outcome, started_unix_nanos, ended_unix_nanos,
	frames_scored, motion_frames, invalid_frames, excluded_pixels,
	peak_progress, qualifying_mean, qualifying_stddev, config_json`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (session.Record, error) {
	var (
		r                      session.Record
		id, outcome, cfg       string
		started, ended         int64
		scored, motion, invalid int64
	)
	if err := row.Scan(
		&id, &r.Source, &outcome, &started, &ended,
		&scored, &motion, &invalid, &r.ExcludedPixels,
		&r.PeakProgress, &r.QualifyingMean, &r.QualifyingStdDev, &cfg,
	); err != nil {
		return r, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return r, fmt.Errorf("bad session id %q: %w", id, err)
	}
	r.ID = parsed
	r.Outcome = session.EndReason(outcome)
	r.StartedAt = time.Unix(0, started).UTC()
	r.EndedAt = time.Unix(0, ended).UTC()
	r.FramesScored = uint64(scored)
	r.MotionFrames = uint64(motion)
	r.InvalidFrames = uint64(invalid)
	if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
		return r, fmt.Errorf("decode detector config for %s: %w", id, err)
	}
	return r, nil
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]session.Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM wake_sessions ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Session returns one session summary.
func (db *DB) Session(ctx context.Context, id uuid.UUID) (session.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM wake_sessions WHERE session_id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Progress returns a session's progress timeline in frame order.
func (db *DB) Progress(ctx context.Context, id uuid.UUID) ([]session.ProgressPoint, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, at_unix_nanos, progress, success_count
		FROM wake_progress WHERE session_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.ProgressPoint
	for rows.Next() {
		var (
			p       session.ProgressPoint
			seq, at int64
		)
		if err := rows.Scan(&seq, &at, &p.Progress, &p.SuccessCount); err != nil {
			return nil, err
		}
		p.Seq = uint64(seq)
		p.At = time.Unix(0, at).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteSessionsBefore removes sessions that started before cutoff, with their
// progress rows. It returns the number of sessions removed.
func (db *DB) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM wake_sessions WHERE started_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
