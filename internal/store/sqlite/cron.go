package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

type cronStore struct{ s *Store }

func (c *cronStore) UpsertJob(ctx context.Context, job store.CronJob) error {
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO cron_jobs (name, schedule, prompt, target_channel, session_mode, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))
			ON CONFLICT(name) DO UPDATE SET
				schedule = excluded.schedule,
				prompt = excluded.prompt,
				target_channel = excluded.target_channel,
				session_mode = excluded.session_mode,
				enabled = excluded.enabled,
				updated_at = datetime('now')`,
			job.Name, job.Schedule, job.Prompt, job.TargetChannel, job.SessionMode, job.Enabled)
		return err
	})
	if err != nil {
		logSQLError("cron.UpsertJob", err)
		return fmt.Errorf("upsert cron job: %w", err)
	}
	return nil
}

func (c *cronStore) DeleteJob(ctx context.Context, name string) error {
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM cron_jobs WHERE name = ?`, name)
		return err
	})
	if err != nil {
		logSQLError("cron.DeleteJob", err)
		return fmt.Errorf("delete cron job: %w", err)
	}
	return nil
}

func (c *cronStore) ListJobs(ctx context.Context) ([]store.CronJob, error) {
	var jobs []store.CronJob
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT name, schedule, prompt, target_channel, session_mode, enabled, created_at, updated_at
			FROM cron_jobs ORDER BY name ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var j store.CronJob
			var targetChannel sql.NullString
			if err := rows.Scan(&j.Name, &j.Schedule, &j.Prompt, &targetChannel, &j.SessionMode, &j.Enabled, &j.CreatedAt, &j.UpdatedAt); err != nil {
				return err
			}
			j.TargetChannel = targetChannel.String
			jobs = append(jobs, j)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("cron.ListJobs", err)
		return nil, fmt.Errorf("list cron jobs: %w", err)
	}
	return jobs, nil
}

func (c *cronStore) GetJob(ctx context.Context, name string) (*store.CronJob, error) {
	var j store.CronJob
	var targetChannel sql.NullString
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `
			SELECT name, schedule, prompt, target_channel, session_mode, enabled, created_at, updated_at
			FROM cron_jobs WHERE name = ?`, name).
			Scan(&j.Name, &j.Schedule, &j.Prompt, &targetChannel, &j.SessionMode, &j.Enabled, &j.CreatedAt, &j.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logSQLError("cron.GetJob", err)
		return nil, fmt.Errorf("get cron job: %w", err)
	}
	j.TargetChannel = targetChannel.String
	return &j, nil
}

func (c *cronStore) RecordRunStart(ctx context.Context, jobName string, startedAt time.Time) (int64, error) {
	var id int64
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `INSERT INTO cron_runs (job_name, started_at) VALUES (?, ?)`, jobName, startedAt)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		logSQLError("cron.RecordRunStart", err)
		return 0, fmt.Errorf("record run start: %w", err)
	}
	return id, nil
}

func (c *cronStore) RecordRunEnd(ctx context.Context, runID int64, endedAt time.Time, ok bool, errMsg string) error {
	err := c.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `UPDATE cron_runs SET ended_at = ?, ok = ?, error = ? WHERE id = ?`, endedAt, ok, errMsg, runID)
		return err
	})
	if err != nil {
		logSQLError("cron.RecordRunEnd", err)
		return fmt.Errorf("record run end: %w", err)
	}
	return nil
}
