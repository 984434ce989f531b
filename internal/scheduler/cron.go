package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/session"
	"github.com/nextlevelbuilder/conductor/internal/store"
)

// runDueCronJobs resolves jobs whose schedule matches now and runs each via
// the Conductor's ephemeral or persistent primitive depending on
// session_mode.
func (s *Scheduler) runDueCronJobs(ctx context.Context, now time.Time) error {
	jobs, err := s.cfg.Store.Cron.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list cron jobs: %w", err)
	}
	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		// 5-field schedules match at second 0 only, so compare against the
		// start of the current minute.
		due, err := s.gx.IsDue(job.Schedule, now.Truncate(time.Minute))
		if err != nil {
			// A malformed schedule shouldn't take down the whole tick.
			continue
		}
		if !due {
			continue
		}
		minuteKey := now.Format("2006-01-02T15:04")
		if s.fired[job.Name] == minuteKey {
			continue
		}
		s.fired[job.Name] = minuteKey
		s.runJob(ctx, job, now)
	}
	return nil
}

func (s *Scheduler) runJob(ctx context.Context, job store.CronJob, now time.Time) {
	runID, err := s.cfg.Store.Cron.RecordRunStart(ctx, job.Name, now)
	if err != nil {
		return
	}

	var reply string
	var runErr error
	switch job.SessionMode {
	case store.SessionPersistent:
		sessionID := job.TargetChannel
		if sessionID == "" {
			sessionID = session.Cron(job.Name)
		}
		reply, runErr = s.cfg.Runner.RunPersistent(ctx, sessionID, s.cfg.SchedulerModel, job.Prompt)
	default:
		reply, runErr = s.cfg.Runner.RunEphemeral(ctx, "", s.cfg.SchedulerModel, job.Prompt)
	}

	endedAt := time.Now().UTC()
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if err := s.cfg.Store.Cron.RecordRunEnd(ctx, runID, endedAt, runErr == nil, errMsg); err != nil {
		return
	}

	if runErr == nil && reply != "" {
		s.deliverToChannel(ctx, job.TargetChannel, reply)
	}
}
