package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

type queueStore struct{ s *Store }

func (q *queueStore) Enqueue(ctx context.Context, msg store.QueuedMessage) (string, error) {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	err := q.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO queue (id, channel, sender_id, sender_name, session_id, content, reply_to, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`,
			id, msg.Channel, msg.SenderID, msg.SenderName, msg.SessionID, msg.Content, msg.ReplyTo, store.QueuePending)
		return err
	})
	if err != nil {
		logSQLError("queue.Enqueue", err)
		return "", fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// ClaimNext selects the oldest pending row and flips it to processing
// inside one transaction, so two concurrent claimants can never take the
// same row.
func (q *queueStore) ClaimNext(ctx context.Context) (*store.QueuedMessage, error) {
	var msg store.QueuedMessage
	err := q.s.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var (
			senderName, replyTo, errStr sql.NullString
		)
		row := tx.QueryRowContext(ctx, `
			SELECT id, channel, sender_id, sender_name, session_id, content, reply_to, status, error, created_at
			FROM queue WHERE status = ? ORDER BY created_at ASC LIMIT 1`, store.QueuePending)
		if err := row.Scan(&msg.ID, &msg.Channel, &msg.SenderID, &senderName, &msg.SessionID, &msg.Content, &replyTo, &msg.Status, &errStr, &msg.CreatedAt); err != nil {
			return err
		}
		msg.SenderName = senderName.String
		msg.ReplyTo = replyTo.String
		msg.Error = errStr.String

		if _, err := tx.ExecContext(ctx, `UPDATE queue SET status = ? WHERE id = ?`, store.QueueProcessing, msg.ID); err != nil {
			return err
		}
		msg.Status = store.QueueProcessing
		return tx.Commit()
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logSQLError("queue.ClaimNext", err)
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return &msg, nil
}

// Complete is idempotent: the WHERE clause only matches rows still in
// processing, so completing an already-terminal row is a silent no-op.
func (q *queueStore) Complete(ctx context.Context, id string, ok bool, errMsg string) error {
	status := store.QueueDone
	if !ok {
		status = store.QueueFailed
	}
	err := q.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			UPDATE queue SET status = ?, error = ?, processed_at = datetime('now')
			WHERE id = ? AND status = ?`,
			status, errMsg, id, store.QueueProcessing)
		return err
	})
	if err != nil {
		logSQLError("queue.Complete", err)
		return fmt.Errorf("complete: %w", err)
	}
	return nil
}

// RequeueStale resets every processing row to pending. Called once on
// startup: a crash mid-processing must not strand messages.
func (q *queueStore) RequeueStale(ctx context.Context) (int, error) {
	var n int64
	err := q.s.withConn(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `UPDATE queue SET status = ? WHERE status = ?`, store.QueuePending, store.QueueProcessing)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		logSQLError("queue.RequeueStale", err)
		return 0, fmt.Errorf("requeue stale: %w", err)
	}
	return int(n), nil
}
