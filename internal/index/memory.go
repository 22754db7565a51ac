package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// snapshot is an immutable view of the index. Writers build a new snapshot
// and publish it with a single pointer store.
type snapshot struct {
	entries map[string]*domain.KnowledgeEntry
}

// Memory is an in-process KnowledgeIndex. Searches read one snapshot, so an
// entry's chunk set is observed either entirely before or entirely after an upsert.
type Memory struct {
	oracle        SimilarityOracle
	minSimilarity float64

	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// NewMemory creates an empty in-memory index scored by oracle. Hits scoring
// at or below zero are discarded.
func NewMemory(oracle SimilarityOracle) *Memory {
	m := &Memory{oracle: oracle}
	m.snap.Store(&snapshot{entries: map[string]*domain.KnowledgeEntry{}})
	return m
}

// Upsert stores entry, replacing any previous version and its chunks.
func (m *Memory) Upsert(ctx context.Context, entry *domain.KnowledgeEntry) error {
	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge entry", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.snap.Load()
	next := &snapshot{entries: make(map[string]*domain.KnowledgeEntry, len(cur.entries)+1)}
	for id, e := range cur.entries {
		next.entries[id] = e
	}
	next.entries[entry.ID] = entry.Clone()
	m.snap.Store(next)
	return nil
}

// Get returns a copy of the entry with its chunks.
func (m *Memory) Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	e, ok := m.snap.Load().entries[id]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	return e.Clone(), nil
}

// List returns entries ordered by most recently updated.
func (m *Memory) List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error) {
	snap := m.snap.Load()
	out := make([]*domain.KnowledgeEntry, 0, len(snap.entries))
	for _, e := range snap.entries {
		if !includeInactive && !e.Active {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Search scores every chunk of every active entry in category and returns
// the best entries.
func (m *Memory) Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error) {
	snap := m.snap.Load()

	var owners []*domain.KnowledgeEntry
	var chunks []domain.KnowledgeChunk
	for _, e := range snap.entries {
		if !e.Active || (category != "" && e.Category != category) {
			continue
		}
		for _, c := range e.Chunks {
			owners = append(owners, e)
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return []domain.ScoredEntry{}, nil
	}

	scores, err := m.oracle.Score(ctx, query, chunks)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(chunks) {
		return nil, fmt.Errorf("similarity oracle returned %d scores for %d chunks", len(scores), len(chunks))
	}

	hits := make([]ChunkHit, 0, len(chunks))
	for i, s := range scores {
		if s <= m.minSimilarity {
			continue
		}
		hits = append(hits, ChunkHit{Entry: owners[i], Chunk: chunks[i], Score: s})
	}

	results := Aggregate(hits, category, limit)
	for i := range results {
		results[i].Entry = results[i].Entry.Clone()
	}
	return results, nil
}

// Len returns the number of stored entries, active or not.
func (m *Memory) Len() int {
	return len(m.snap.Load().entries)
}
