package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/conductor/internal/store"
)

// rrfK is the reciprocal-rank-fusion constant: rrf = Σ 1/(k+rank) with
// k=60, the standard literature value.
const rrfK = 60

// halfLife is the per-category temporal decay half-life in days.
// Decision memories never decay.
var halfLife = map[store.MemoryCategory]float64{
	store.CategoryTask:       7,
	store.CategoryContext:    14,
	store.CategoryEvent:      14,
	store.CategoryFact:       30,
	store.CategoryReflection: 60,
	store.CategoryPreference: 90,
}

type memoryStore struct {
	s      *Store
	vector *vectorShadow
}

func newMemoryStore(s *Store, vector *vectorShadow) *memoryStore {
	return &memoryStore{s: s, vector: vector}
}

func (m *memoryStore) Upsert(ctx context.Context, e store.MemoryEntry) (int64, error) {
	var id int64
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		if e.Key != "" {
			var existing int64
			err := db.QueryRowContext(ctx, `SELECT id FROM memory WHERE key = ?`, e.Key).Scan(&existing)
			if err == nil {
				_, err := db.ExecContext(ctx, `
					UPDATE memory SET content = ?, tags = ?, source = ?, category = ?, importance = ?, updated_at = datetime('now')
					WHERE id = ?`,
					e.Content, e.Tags, e.Source, e.Category, e.Importance, existing)
				id = existing
				return err
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}
		res, err := db.ExecContext(ctx, `
			INSERT INTO memory (key, content, tags, source, category, importance, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'))`,
			nullIfEmpty(e.Key), e.Content, e.Tags, e.Source, e.Category, e.Importance)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		logSQLError("memory.Upsert", err)
		return 0, fmt.Errorf("upsert memory: %w", err)
	}
	if err := m.vector.upsert(ctx, id, e.Content); err != nil {
		// The vector index is a shadow: a failure here must not fail the
		// write that the FTS phase and callers already rely on.
		logSQLError("memory.Upsert.vector", err)
	}
	return id, nil
}

func (m *memoryStore) Delete(ctx context.Context, id int64) error {
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM memory WHERE id = ?`, id)
		return err
	})
	if err != nil {
		logSQLError("memory.Delete", err)
		return fmt.Errorf("delete memory: %w", err)
	}
	if err := m.vector.delete(ctx, id); err != nil {
		logSQLError("memory.Delete.vector", err)
	}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (*store.MemoryEntry, error) {
	e, err := m.scanOne(ctx, `
		SELECT id, coalesce(key, ''), content, coalesce(tags, ''), coalesce(source, ''), category, importance,
			created_at, updated_at, last_accessed, access_count
		FROM memory WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (m *memoryStore) scanOne(ctx context.Context, query string, args ...any) (*store.MemoryEntry, error) {
	var e store.MemoryEntry
	var lastAccessed sql.NullTime
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, query, args...).Scan(
			&e.ID, &e.Key, &e.Content, &e.Tags, &e.Source, &e.Category, &e.Importance,
			&e.CreatedAt, &e.UpdatedAt, &lastAccessed, &e.AccessCount)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logSQLError("memory.Get", err)
		return nil, fmt.Errorf("get memory: %w", err)
	}
	if lastAccessed.Valid {
		e.LastAccessed = &lastAccessed.Time
	}
	return &e, nil
}

// Search runs the three-phase ranking pipeline: FTS5 and vector
// candidate gathering at 3×limit each, reciprocal rank fusion across both
// lists, then temporal decay by category half-life. Ties are broken by id so
// results are deterministic, satisfying the "no duplicate ids, non-increasing
// score order" invariant under repeated identical queries.
func (m *memoryStore) Search(ctx context.Context, query string, category store.MemoryCategory, limit int) ([]store.MemoryScored, error) {
	if limit <= 0 {
		return nil, nil
	}
	fetch := limit * 3

	ftsIDs, err := m.ftsCandidates(ctx, query, category, fetch)
	if err != nil {
		return nil, err
	}
	vecIDs, err := m.vector.search(ctx, query, fetch)
	if err != nil {
		logSQLError("memory.Search.vector", err)
		vecIDs = nil
	}

	rrf := make(map[int64]float64)
	for rank, id := range ftsIDs {
		rrf[id] += 1.0 / float64(rrfK+rank+1)
	}
	for rank, id := range vecIDs {
		rrf[id] += 1.0 / float64(rrfK+rank+1)
	}
	if len(rrf) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(rrf))
	for id := range rrf {
		ids = append(ids, id)
	}

	entries, err := m.fetchMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	scored := make([]store.MemoryScored, 0, len(entries))
	for _, e := range entries {
		if category != "" && e.Category != category {
			continue
		}
		decay := decayFactor(e.Category, e.CreatedAt, now)
		scored = append(scored, store.MemoryScored{
			MemoryEntry: e,
			Score:       rrf[e.ID] * decay,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}

	if err := m.touch(ctx, scored); err != nil {
		// Access bookkeeping is best-effort bookkeeping, not part of the
		// search contract itself; a failure here shouldn't turn a
		// successful search into an error.
		logSQLError("memory.Search.touch", err)
	}
	return scored, nil
}

// touch updates last_accessed and access_count for the rows a Search call is
// about to return, in one transaction.
func (m *memoryStore) touch(ctx context.Context, results []store.MemoryScored) error {
	if len(results) == 0 {
		return nil
	}
	return m.s.withConn(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE memory SET last_accessed = datetime('now'), access_count = access_count + 1 WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range results {
			if _, err := stmt.ExecContext(ctx, r.ID); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func decayFactor(category store.MemoryCategory, createdAt, now time.Time) float64 {
	if category == store.CategoryDecision {
		return 1
	}
	hl, ok := halfLife[category]
	if !ok || hl <= 0 {
		return 1
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/hl)
}

// ftsCandidates builds a prefix-AND MATCH query (each term becomes `term*`)
// against memory_fts and returns ids ordered by bm25 relevance, best first.
func (m *memoryStore) ftsCandidates(ctx context.Context, query string, category store.MemoryCategory, limit int) ([]int64, error) {
	matchQuery := ftsPrefixQuery(query)
	if matchQuery == "" {
		return nil, nil
	}
	var ids []int64
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		sqlText := `
			SELECT m.id FROM memory_fts f
			JOIN memory m ON m.id = f.rowid
			WHERE memory_fts MATCH ?`
		args := []any{matchQuery}
		if category != "" {
			sqlText += ` AND m.category = ?`
			args = append(args, category)
		}
		sqlText += ` ORDER BY bm25(memory_fts) LIMIT ?`
		args = append(args, limit)

		rows, err := db.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("memory.ftsCandidates", err)
		return nil, fmt.Errorf("fts search: %w", err)
	}
	return ids, nil
}

func ftsPrefixQuery(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = sanitizeFTSTerm(f)
		if f == "" {
			continue
		}
		terms = append(terms, f+"*")
	}
	return strings.Join(terms, " AND ")
}

// sanitizeFTSTerm strips FTS5 special characters so user content can never
// break out of the MATCH query syntax.
func sanitizeFTSTerm(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '"', '*', ':', '(', ')', '^':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *memoryStore) fetchMany(ctx context.Context, ids []int64) ([]store.MemoryEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	var entries []store.MemoryEntry
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		q := fmt.Sprintf(`
			SELECT id, coalesce(key, ''), content, coalesce(tags, ''), coalesce(source, ''), category, importance,
				created_at, updated_at, last_accessed, access_count
			FROM memory WHERE id IN (%s)`, strings.Join(placeholders, ","))
		rows, err := db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var e store.MemoryEntry
			var lastAccessed sql.NullTime
			if err := rows.Scan(&e.ID, &e.Key, &e.Content, &e.Tags, &e.Source, &e.Category, &e.Importance,
				&e.CreatedAt, &e.UpdatedAt, &lastAccessed, &e.AccessCount); err != nil {
				return err
			}
			if lastAccessed.Valid {
				e.LastAccessed = &lastAccessed.Time
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("memory.fetchMany", err)
		return nil, fmt.Errorf("fetch memories: %w", err)
	}
	return entries, nil
}

// DeleteStale removes memory rows untouched since olderThan with importance
// at or below maxImportance, excluding decisions. "Untouched" means
// last_accessed if set, else created_at.
func (m *memoryStore) DeleteStale(ctx context.Context, olderThan time.Time, maxImportance int) (int, error) {
	var ids []int64
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id FROM memory
			WHERE category != ?
			AND importance <= ?
			AND coalesce(last_accessed, created_at) < ?`,
			store.CategoryDecision, maxImportance, olderThan.UTC())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("memory.DeleteStale.select", err)
		return 0, fmt.Errorf("select stale memories: %w", err)
	}
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// DeleteDuplicates groups rows by exact content match, keeping the newest
// (highest id) of each group.
func (m *memoryStore) DeleteDuplicates(ctx context.Context) (int, error) {
	var ids []int64
	err := m.s.withConn(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT id FROM memory m
			WHERE EXISTS (
				SELECT 1 FROM memory m2
				WHERE m2.content = m.content AND m2.id > m.id
			)`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		logSQLError("memory.DeleteDuplicates.select", err)
		return 0, fmt.Errorf("select duplicate memories: %w", err)
	}
	for _, id := range ids {
		if err := m.Delete(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
