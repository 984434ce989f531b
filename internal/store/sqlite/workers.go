package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

type workerStore struct{ s *Store }

func (w *workerStore) Upsert(ctx context.Context, sw store.SavedWorker) error {
	err := w.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO saved_workers (name, system_prompt, model, created_at)
			VALUES (?, ?, ?, datetime('now'))
			ON CONFLICT(name) DO UPDATE SET
				system_prompt = excluded.system_prompt,
				model = excluded.model`,
			sw.Name, sw.SystemPrompt, sw.Model)
		return err
	})
	if err != nil {
		logSQLError("workers.Upsert", err)
		return fmt.Errorf("upsert saved worker: %w", err)
	}
	return nil
}

func (w *workerStore) Get(ctx context.Context, name string) (*store.SavedWorker, error) {
	var sw store.SavedWorker
	var model sql.NullString
	err := w.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT name, system_prompt, model, created_at FROM saved_workers WHERE name = ?`, name).
			Scan(&sw.Name, &sw.SystemPrompt, &model, &sw.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logSQLError("workers.Get", err)
		return nil, fmt.Errorf("get saved worker: %w", err)
	}
	sw.Model = model.String
	return &sw, nil
}

func (w *workerStore) List(ctx context.Context) ([]store.SavedWorker, error) {
	var workers []store.SavedWorker
	err := w.s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT name, system_prompt, model, created_at FROM saved_workers ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var sw store.SavedWorker
			var model sql.NullString
			if err := rows.Scan(&sw.Name, &sw.SystemPrompt, &model, &sw.CreatedAt); err != nil {
				return err
			}
			sw.Model = model.String
			workers = append(workers, sw)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("workers.List", err)
		return nil, fmt.Errorf("list saved workers: %w", err)
	}
	return workers, nil
}

func (w *workerStore) Delete(ctx context.Context, name string) error {
	err := w.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM saved_workers WHERE name = ?`, name)
		return err
	})
	if err != nil {
		logSQLError("workers.Delete", err)
		return fmt.Errorf("delete saved worker: %w", err)
	}
	return nil
}
