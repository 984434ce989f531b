// Package store defines the Persistence Store contract: the
// single embedded relational store every other subsystem depends on.
// Blocking SQL work happens behind these interfaces, and callers use the
// context-taking methods. Budget accounting inside the LLM turn does not go
// through this package; security.Budget keeps its counters in memory.
package store

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/agentcore"
)

// QueueStatus is the lifecycle state of one queued message.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueDone       QueueStatus = "done"
	QueueFailed     QueueStatus = "failed"
)

// QueuedMessage is one row of the crash-safe inbound queue.
type QueuedMessage struct {
	ID          string
	Channel     string
	SenderID    string
	SenderName  string
	SessionID   string
	Content     string
	ReplyTo     string
	Status      QueueStatus
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// TapeStore persists per-session conversation history.
type TapeStore interface {
	// Save serialises msgs as one value and upserts it with message count
	// and timestamp. Whole-blob replacement; at most one row per session.
	Save(ctx context.Context, sessionID string, msgs []agentcore.Message) error
	// Load returns the empty sequence if the session has no tape yet.
	Load(ctx context.Context, sessionID string) ([]agentcore.Message, error)
	// Clear deletes the row. Nothing outside the tests calls it: a tape that
	// fails to load on a session switch is not cleared, and the next Save
	// overwrites it.
	Clear(ctx context.Context, sessionID string) error
	// MessageCount returns the persisted message count without decoding
	// the blob (used by tests).
	MessageCount(ctx context.Context, sessionID string) (int, error)
	// ListUpdatedSince returns every session touched at or after since,
	// for the scheduler's consolidation and session-indexing passes.
	ListUpdatedSince(ctx context.Context, since time.Time) ([]SessionActivity, error)
}

// SessionActivity summarizes one tape row for cortex maintenance.
type SessionActivity struct {
	SessionID    string
	UpdatedAt    time.Time
	MessageCount int
}

// QueueStore is the crash-safe inbound queue.
type QueueStore interface {
	// Enqueue is total: it must never drop a message.
	Enqueue(ctx context.Context, msg QueuedMessage) (string, error)
	// ClaimNext atomically selects the oldest pending row, flips it to
	// processing, and returns it. Returns (nil, nil) if the queue is empty.
	ClaimNext(ctx context.Context) (*QueuedMessage, error)
	// Complete flips a row to a terminal state. Idempotent: completing an
	// already-terminal row a second time is a no-op.
	Complete(ctx context.Context, id string, ok bool, errMsg string) error
	// RequeueStale resets every `processing` row to `pending` (crash
	// recovery on startup).
	RequeueStale(ctx context.Context) (int, error)
}

// MemoryCategory is the category enum for a memory entry.
type MemoryCategory string

const (
	CategoryFact       MemoryCategory = "fact"
	CategoryPreference MemoryCategory = "preference"
	CategoryDecision   MemoryCategory = "decision"
	CategoryTask       MemoryCategory = "task"
	CategoryContext    MemoryCategory = "context"
	CategoryEvent      MemoryCategory = "event"
	CategoryReflection MemoryCategory = "reflection"
)

// MemoryEntry is one long-term memory row.
type MemoryEntry struct {
	ID           int64
	Key          string
	Content      string
	Tags         string
	Source       string
	Category     MemoryCategory
	Importance   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed *time.Time
	AccessCount  int
}

// MemoryScored wraps a MemoryEntry with the score it was ranked by.
type MemoryScored struct {
	MemoryEntry
	Score float64
}

// MemoryStore implements memory store/search, the only non-trivial
// algorithm in the persistence layer.
type MemoryStore interface {
	// Upsert inserts or updates-by-key (when Key != "") a memory entry,
	// maintaining the FTS shadow and, when enabled, the vector shadow.
	Upsert(ctx context.Context, m MemoryEntry) (int64, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*MemoryEntry, error)
	// Search ranks by the three-phase RRF + temporal decay pipeline.
	// category == "" means no filter.
	Search(ctx context.Context, query string, category MemoryCategory, limit int) ([]MemoryScored, error)

	// DeleteStale removes entries untouched since olderThan with importance
	// at or below maxImportance, excluding CategoryDecision. Returns the
	// number of rows removed.
	DeleteStale(ctx context.Context, olderThan time.Time, maxImportance int) (int, error)
	// DeleteDuplicates groups rows by exact content match, keeps the
	// newest of each group, and deletes the rest.
	DeleteDuplicates(ctx context.Context) (int, error)
}

// AuditEventType names one kind of audit event.
type AuditEventType string

const (
	AuditToolCall       AuditEventType = "tool_call"
	AuditToolDenied     AuditEventType = "tool_denied"
	AuditInputRejected  AuditEventType = "input_rejected"
	AuditBudgetExceeded AuditEventType = "budget_exceeded"
)

// AuditEvent is one append-only audit row.
type AuditEvent struct {
	SessionID string
	EventType AuditEventType
	ToolName  string
	Detail    string
	Tokens    int64
	Timestamp time.Time
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, ev AuditEvent) error
}

// SessionMode controls whether a cron job's agent state carries across
// runs.
type SessionMode string

const (
	SessionIsolated  SessionMode = "isolated"
	SessionPersistent SessionMode = "persistent"
)

// CronJob is a user-defined scheduled prompt.
type CronJob struct {
	Name          string
	Schedule      string
	Prompt        string
	TargetChannel string
	SessionMode   SessionMode
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CronRun records one execution of a CronJob.
type CronRun struct {
	ID        int64
	JobName   string
	StartedAt time.Time
	EndedAt   *time.Time
	OK        bool
	Error     string
}

// CronStore is cron CRUD plus run logging.
type CronStore interface {
	UpsertJob(ctx context.Context, job CronJob) error
	DeleteJob(ctx context.Context, name string) error
	ListJobs(ctx context.Context) ([]CronJob, error)
	GetJob(ctx context.Context, name string) (*CronJob, error)
	RecordRunStart(ctx context.Context, jobName string, startedAt time.Time) (int64, error)
	RecordRunEnd(ctx context.Context, runID int64, endedAt time.Time, ok bool, errMsg string) error
}

// StateStore is the small key-value progress-marker table.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// SavedWorker is a persisted sub-agent definition.
type SavedWorker struct {
	Name         string
	SystemPrompt string
	Model        string
	CreatedAt    time.Time
}

// WorkerStore persists saved sub-agent definitions.
type WorkerStore interface {
	Upsert(ctx context.Context, w SavedWorker) error
	Get(ctx context.Context, name string) (*SavedWorker, error)
	List(ctx context.Context) ([]SavedWorker, error)
	Delete(ctx context.Context, name string) error
}

// Store is the top-level container every collaborator depends on, one
// field per table-scoped store.
type Store struct {
	Tape    TapeStore
	Queue   QueueStore
	Memory  MemoryStore
	Audit   AuditStore
	Cron    CronStore
	State   StateStore
	Workers WorkerStore

	// Close releases the underlying database connection.
	Closer interface{ Close() error }
}
