package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

func TestCronUpsertJobUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	job := store.CronJob{Name: "digest", Schedule: "0 9 * * *", Prompt: "summarize", Enabled: true, SessionMode: store.SessionIsolated}
	if err := st.Cron.UpsertJob(ctx, job); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	job.Schedule = "0 10 * * *"
	job.Enabled = false
	if err := st.Cron.UpsertJob(ctx, job); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := st.Cron.GetJob(ctx, "digest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Schedule != "0 10 * * *" || got.Enabled {
		t.Fatalf("expected upsert to update in place, got %+v", got)
	}

	jobs, err := st.Cron.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one job row after upsert-by-name, got %d", len(jobs))
	}
}

func TestCronDeleteJob(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	st.Cron.UpsertJob(ctx, store.CronJob{Name: "one-off", Schedule: "* * * * *", SessionMode: store.SessionIsolated})
	if err := st.Cron.DeleteJob(ctx, "one-off"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := st.Cron.GetJob(ctx, "one-off")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected job to be gone, got %+v", got)
	}
}

func TestCronRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	st := s.Stores()

	start := time.Now().UTC()
	runID, err := st.Cron.RecordRunStart(ctx, "digest", start)
	if err != nil {
		t.Fatalf("record run start: %v", err)
	}
	if err := st.Cron.RecordRunEnd(ctx, runID, start.Add(time.Second), true, ""); err != nil {
		t.Fatalf("record run end: %v", err)
	}
}
