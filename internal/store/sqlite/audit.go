package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

type auditStore struct{ s *Store }

// Append is a straight insert; audit is append-only, so no update or
// delete path is exposed.
func (a *auditStore) Append(ctx context.Context, ev store.AuditEvent) error {
	err := a.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO audit (session_id, event_type, tool_name, detail, tokens_used, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			ev.SessionID, ev.EventType, ev.ToolName, ev.Detail, ev.Tokens, ev.Timestamp)
		return err
	})
	if err != nil {
		logSQLError("audit.Append", err)
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}
