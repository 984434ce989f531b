package sqlite

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
)

// vectorShadow is the optional semantic-search phase of memory search: a
// pure-Go embedded vector index kept alongside the FTS5 text index, gated
// by config so a deployment with no embedding provider configured simply
// never constructs one. A single persistent collection is enough since the
// process takes one embedding function at startup.
type vectorShadow struct {
	collection *chromem.Collection
}

// newVectorShadow opens (or creates) a persistent chromem-go database under
// dir and gets/creates the "memory" collection using fn. A nil fn disables
// the shadow: callers get a *vectorShadow with collection == nil and every
// method becomes a no-op, so memoryStore doesn't need a separate enabled flag.
func newVectorShadow(dir string, fn chromem.EmbeddingFunc) (*vectorShadow, error) {
	if fn == nil {
		return &vectorShadow{}, nil
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	coll, err := db.GetOrCreateCollection("memory", nil, fn)
	if err != nil {
		return nil, fmt.Errorf("get or create vector collection: %w", err)
	}
	return &vectorShadow{collection: coll}, nil
}

func (v *vectorShadow) enabled() bool { return v != nil && v.collection != nil }

func (v *vectorShadow) upsert(ctx context.Context, id int64, content string) error {
	if !v.enabled() {
		return nil
	}
	doc := chromem.Document{
		ID:      strconv.FormatInt(id, 10),
		Content: content,
	}
	if err := v.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vector upsert: %w", err)
	}
	return nil
}

func (v *vectorShadow) delete(ctx context.Context, id int64) error {
	if !v.enabled() {
		return nil
	}
	if err := v.collection.Delete(ctx, nil, nil, strconv.FormatInt(id, 10)); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// search returns memory ids ranked by semantic similarity, most similar
// first. Returns (nil, nil) when the shadow is disabled so callers can treat
// it as "no candidates from this phase" without branching on enabled().
func (v *vectorShadow) search(ctx context.Context, query string, n int) ([]int64, error) {
	if !v.enabled() {
		return nil, nil
	}
	if n <= 0 {
		return nil, nil
	}
	count := v.collection.Count()
	if n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := v.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	ids := make([]int64, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
