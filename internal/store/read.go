package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
)

// ReadSession returns one session. Returns ErrNotFound if it does not exist.
func (s *Store) ReadSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash, note, engine_version, ir_version
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, err
}

// ListSessions returns all sessions, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, config_hash, note, engine_version, ir_version
		FROM sessions
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
// Returns ErrNotFound if the store is empty.
func (s *Store) LatestSession(ctx context.Context) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, config_hash, note, engine_version, ir_version
		FROM sessions
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT 1
	`)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("latest session: %w", ErrNotFound)
	}
	return sess, err
}

// ReadInputs returns a session's input events ordered by seq.
// Payloads are decoded back into their channel types. Confidence is
// restored from basis points.
func (s *Store) ReadInputs(ctx context.Context, sessionID string) ([]ir.InputEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, type, data, timestamp, priority, confidence_bp, metadata
		FROM inputs
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	events := []ir.InputEvent{}
	for rows.Next() {
		ev, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return events, nil
}

// ReadOutputs returns a session's fused outputs in emission order.
func (s *Store) ReadOutputs(ctx context.Context, sessionID string) ([]OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position, rule_id, kind, command, data, input_ids, confidence_bp, timestamp
		FROM fused_outputs
		WHERE session_id = ?
		ORDER BY position ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query outputs: %w", err)
	}
	defer rows.Close()

	outputs := []OutputRecord{}
	for rows.Next() {
		rec, err := scanOutput(rows)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outputs: %w", err)
	}
	return outputs, nil
}

// ReadLogEntries returns a session's log entries in stored order.
//
// An empty kind returns every kind. A positive limit keeps only the newest
// limit entries, still oldest first.
func (s *Store) ReadLogEntries(ctx context.Context, sessionID string, kind fusionlog.Kind, limit int) ([]fusionlog.Entry, error) {
	query := `
		SELECT entry FROM (
			SELECT position, entry
			FROM log_entries
			WHERE session_id = ? AND (? = '' OR kind = ?)
			ORDER BY position DESC
			LIMIT ?
		)
		ORDER BY position ASC
	`
	lim := -1
	if limit > 0 {
		lim = limit
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, string(kind), string(kind), lim)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	entries := []fusionlog.Entry{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		var e fusionlog.Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("unmarshal log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log entries: %w", err)
	}
	return entries, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var sess Session
	var startedAt string
	if err := row.Scan(
		&sess.ID,
		&startedAt,
		&sess.ConfigHash,
		&sess.Note,
		&sess.EngineVersion,
		&sess.IRVersion,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	t, err := parseTime(startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("scan session %s: %w", sess.ID, err)
	}
	sess.StartedAt = t
	return sess, nil
}

func scanInput(row scanner) (ir.InputEvent, error) {
	var (
		ev     ir.InputEvent
		typ    string
		data   string
		ts     string
		confBP sql.NullInt64
		meta   string
	)
	if err := row.Scan(&ev.ID, &ev.Seq, &typ, &data, &ts, &ev.Priority, &confBP, &meta); err != nil {
		return ir.InputEvent{}, fmt.Errorf("scan input: %w", err)
	}

	t, err := ir.ParseInputType(typ)
	if err != nil {
		return ir.InputEvent{}, fmt.Errorf("scan input %s: %w", ev.ID, err)
	}
	ev.Type = t

	if ev.Data, err = ir.UnmarshalPayload(t, []byte(data)); err != nil {
		return ir.InputEvent{}, fmt.Errorf("scan input %s: %w", ev.ID, err)
	}
	if ev.Timestamp, err = parseTime(ts); err != nil {
		return ir.InputEvent{}, fmt.Errorf("scan input %s: %w", ev.ID, err)
	}
	if confBP.Valid {
		ev.Confidence = ir.Confidence(float64(confBP.Int64) / 10000)
	}
	if ev.Metadata, err = unmarshalMetadata(meta); err != nil {
		return ir.InputEvent{}, fmt.Errorf("scan input %s: %w", ev.ID, err)
	}
	return ev, nil
}

func scanOutput(row scanner) (OutputRecord, error) {
	var (
		rec  OutputRecord
		data string
		ids  string
		ts   string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Position,
		&rec.RuleID,
		&rec.Kind,
		&rec.Command,
		&data,
		&ids,
		&rec.ConfidenceBP,
		&ts,
	); err != nil {
		return OutputRecord{}, fmt.Errorf("scan output: %w", err)
	}

	var err error
	if rec.Data, err = unmarshalFusedData(data); err != nil {
		return OutputRecord{}, fmt.Errorf("scan output %s: %w", rec.ID, err)
	}
	if rec.InputIDs, err = unmarshalIDs(ids); err != nil {
		return OutputRecord{}, fmt.Errorf("scan output %s: %w", rec.ID, err)
	}
	if rec.Timestamp, err = parseTime(ts); err != nil {
		return OutputRecord{}, fmt.Errorf("scan output %s: %w", rec.ID, err)
	}
	return rec, nil
}
