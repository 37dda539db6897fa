package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSession creates a session with a fresh UUIDv7 id and the current
// engine and IR versions.
func (s *Store) NewSession(ctx context.Context, startedAt time.Time, configHash, note string) (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("new session: %w", err)
	}
	sess := Session{
		ID:            id.String(),
		StartedAt:     startedAt,
		ConfigHash:    configHash,
		Note:          note,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if err := s.WriteSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// WriteSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	return writeSession(ctx, s.db, sess)
}

func writeSession(ctx context.Context, db execer, sess Session) error {
	if sess.ID == "" {
		return fmt.Errorf("write session: id is required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, started_at, config_hash, note, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		formatTime(sess.StartedAt),
		sess.ConfigHash,
		sess.Note,
		sess.EngineVersion,
		sess.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteInput inserts an input event into a session.
// Uses ON CONFLICT DO NOTHING for idempotency.
//
// Note: The session must exist (foreign key constraint).
func (s *Store) WriteInput(ctx context.Context, sessionID string, ev ir.InputEvent) error {
	return writeInput(ctx, s.db, sessionID, ev)
}

func writeInput(ctx context.Context, db execer, sessionID string, ev ir.InputEvent) error {
	data, err := ir.MarshalPayload(ev.Data)
	if err != nil {
		return fmt.Errorf("write input %s: %w", ev.ID, err)
	}
	meta, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return fmt.Errorf("write input %s: %w", ev.ID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO inputs
		(session_id, id, seq, type, data, timestamp, priority, confidence_bp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		ev.ID,
		ev.Seq,
		string(ev.Type),
		string(data),
		formatTime(ev.Timestamp),
		ev.Priority,
		confidenceBP(ev.Confidence),
		meta,
	)
	if err != nil {
		return fmt.Errorf("write input %s: %w", ev.ID, err)
	}
	return nil
}

// WriteOutput inserts a fused output at the given emission position.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) WriteOutput(ctx context.Context, sessionID string, position int64, out ir.FusedOutput) error {
	return writeOutput(ctx, s.db, sessionID, position, out)
}

func writeOutput(ctx context.Context, db execer, sessionID string, position int64, out ir.FusedOutput) error {
	data, err := marshalFusedData(out.Data)
	if err != nil {
		return fmt.Errorf("write output %s: %w", out.ID, err)
	}
	ids, err := marshalIDs(ir.InputIDs(out.OriginalInputs))
	if err != nil {
		return fmt.Errorf("write output %s: %w", out.ID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO fused_outputs
		(session_id, id, position, rule_id, kind, command, data, input_ids, confidence_bp, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		sessionID,
		out.ID,
		position,
		out.RuleID,
		out.Data.Kind,
		out.Data.Command,
		data,
		ids,
		ir.BasisPoints(out.Confidence),
		formatTime(out.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("write output %s: %w", out.ID, err)
	}
	return nil
}

// WriteLogEntries appends logger entries to a session, after any entries
// already stored. The batch is written in one transaction.
func (s *Store) WriteLogEntries(ctx context.Context, sessionID string, entries []fusionlog.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write log entries: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeLogEntries(ctx, tx, sessionID, entries); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write log entries: commit: %w", err)
	}
	return nil
}

func writeLogEntries(ctx context.Context, db execer, sessionID string, entries []fusionlog.Entry) error {
	var next int64
	if err := db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), 0) FROM log_entries WHERE session_id = ?
	`, sessionID).Scan(&next); err != nil {
		return fmt.Errorf("write log entries: %w", err)
	}

	for _, e := range entries {
		next++
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("write log entries: marshal entry %d: %w", next, err)
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO log_entries (session_id, position, kind, timestamp, entry)
			VALUES (?, ?, ?, ?, ?)
		`, sessionID, next, string(e.Kind), formatTime(e.Timestamp), string(data)); err != nil {
			return fmt.Errorf("write log entries: %w", err)
		}
	}
	return nil
}

// Archive holds everything recorded during one engine run.
type Archive struct {
	Session Session
	Inputs  []ir.InputEvent
	Outputs []ir.FusedOutput
	Log     []fusionlog.Entry
}

// WriteArchive stores a complete session in one transaction. Outputs are
// positioned in slice order starting at 1.
func (s *Store) WriteArchive(ctx context.Context, a Archive) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write archive: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := writeSession(ctx, tx, a.Session); err != nil {
		return err
	}
	for _, ev := range a.Inputs {
		if err := writeInput(ctx, tx, a.Session.ID, ev); err != nil {
			return err
		}
	}
	for i, out := range a.Outputs {
		if err := writeOutput(ctx, tx, a.Session.ID, int64(i+1), out); err != nil {
			return err
		}
	}
	if err := writeLogEntries(ctx, tx, a.Session.ID, a.Log); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write archive: commit: %w", err)
	}

	slog.Debug("session archived",
		"session", a.Session.ID,
		"inputs", len(a.Inputs),
		"outputs", len(a.Outputs),
		"log_entries", len(a.Log),
	)
	return nil
}
