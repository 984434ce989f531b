package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

type tapeStore struct{ s *Store }

func (t *tapeStore) Save(ctx context.Context, sessionID string, msgs []agentcore.Message) error {
	blob, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal tape: %w", err)
	}
	err = t.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO tape (session_id, messages, message_count, updated_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(session_id) DO UPDATE SET
				messages = excluded.messages,
				message_count = excluded.message_count,
				updated_at = excluded.updated_at`,
			sessionID, string(blob), len(msgs))
		return err
	})
	if err != nil {
		logSQLError("tape.Save", err)
		return fmt.Errorf("save tape: %w", err)
	}
	return nil
}

func (t *tapeStore) Load(ctx context.Context, sessionID string) ([]agentcore.Message, error) {
	var blob string
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT messages FROM tape WHERE session_id = ?`, sessionID).Scan(&blob)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return []agentcore.Message{}, nil
	}
	if err != nil {
		logSQLError("tape.Load", err)
		return nil, fmt.Errorf("load tape: %w", err)
	}
	var msgs []agentcore.Message
	if err := json.Unmarshal([]byte(blob), &msgs); err != nil {
		return nil, fmt.Errorf("decode tape: %w", err)
	}
	return msgs, nil
}

func (t *tapeStore) Clear(ctx context.Context, sessionID string) error {
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM tape WHERE session_id = ?`, sessionID)
		return err
	})
	if err != nil {
		logSQLError("tape.Clear", err)
		return fmt.Errorf("clear tape: %w", err)
	}
	return nil
}

func (t *tapeStore) MessageCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT message_count FROM tape WHERE session_id = ?`, sessionID).Scan(&count)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		logSQLError("tape.MessageCount", err)
		return 0, fmt.Errorf("message count: %w", err)
	}
	return count, nil
}

func (t *tapeStore) ListUpdatedSince(ctx context.Context, since time.Time) ([]store.SessionActivity, error) {
	var out []store.SessionActivity
	err := t.s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx,
			`SELECT session_id, updated_at, message_count FROM tape WHERE updated_at >= ? ORDER BY updated_at`,
			since.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var a store.SessionActivity
			if err := rows.Scan(&a.SessionID, &a.UpdatedAt, &a.MessageCount); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("tape.ListUpdatedSince", err)
		return nil, fmt.Errorf("list updated sessions: %w", err)
	}
	return out, nil
}
