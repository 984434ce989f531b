package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type stateStore struct{ s *Store }

func (st *stateStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := st.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		logSQLError("state.Get", err)
		return "", false, fmt.Errorf("get state: %w", err)
	}
	return value, true, nil
}

func (st *stateStore) Set(ctx context.Context, key, value string) error {
	err := st.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
	if err != nil {
		logSQLError("state.Set", err)
		return fmt.Errorf("set state: %w", err)
	}
	return nil
}
