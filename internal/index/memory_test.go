package index

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryWithChunks(id, category string, contents ...string) *domain.KnowledgeEntry {
	e := domain.NewKnowledgeEntry(id, "Title "+id, strings.Join(contents, " "), category, nil, time.Now())
	for i, c := range contents {
		e.Chunks = append(e.Chunks, domain.KnowledgeChunk{
			ID:      fmt.Sprintf("%s-%d", id, i),
			EntryID: id,
			Index:   i,
			Content: c,
		})
	}
	return e
}

func TestMemory_UpsertGetList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(LexicalOracle{})

	require.NoError(t, m.Upsert(ctx, entryWithChunks("a", "billing", "refund policy")))
	inactive := entryWithChunks("b", "billing", "old refund policy")
	inactive.Active = false
	require.NoError(t, m.Upsert(ctx, inactive))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Title a", got.Title)
	require.Len(t, got.Chunks, 1)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)

	active, err := m.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := m.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemory_UpsertRejectsInvalidEntry(t *testing.T) {
	m := NewMemory(LexicalOracle{})
	err := m.Upsert(context.Background(), &domain.KnowledgeEntry{ID: "x"})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
	assert.Equal(t, 0, m.Len())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(LexicalOracle{})
	require.NoError(t, m.Upsert(ctx, entryWithChunks("a", "", "text")))

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	got.Chunks[0].Content = "mutated"

	again, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "text", again.Chunks[0].Content)
}

func TestMemory_Search(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(LexicalOracle{})

	require.NoError(t, m.Upsert(ctx, entryWithChunks("refunds", "billing",
		"Refunds go back to the original card.", "A refund takes five business days.")))
	require.NoError(t, m.Upsert(ctx, entryWithChunks("shipping", "logistics",
		"Orders ship within two days.")))
	hidden := entryWithChunks("legacy", "billing", "Refund by cheque takes five weeks.")
	hidden.Active = false
	require.NoError(t, m.Upsert(ctx, hidden))

	results, err := m.Search(ctx, "how many days does a refund take", 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "refunds", results[0].Entry.ID)
	assert.Equal(t, 1, results[0].BestChunk.Index)
	for _, r := range results {
		assert.NotEqual(t, "legacy", r.Entry.ID)
	}

	billing, err := m.Search(ctx, "days", 5, "logistics")
	require.NoError(t, err)
	require.Len(t, billing, 1)
	assert.Equal(t, "shipping", billing[0].Entry.ID)

	none, err := m.Search(ctx, "warranty", 5, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// generationOracle fails the test if one Score call sees chunks of an entry
// from more than one generation.
type generationOracle struct {
	mixed atomic.Int64
	calls atomic.Int64
}

func (o *generationOracle) Score(ctx context.Context, query string, chunks []domain.KnowledgeChunk) ([]float64, error) {
	o.calls.Add(1)
	gens := map[string]struct{}{}
	for _, c := range chunks {
		gens[strings.SplitN(c.Content, ":", 2)[0]] = struct{}{}
	}
	if len(gens) > 1 {
		o.mixed.Add(1)
	}
	scores := make([]float64, len(chunks))
	for i := range scores {
		scores[i] = 1
	}
	return scores, nil
}

func TestMemory_UpsertIsAtomicForConcurrentSearch(t *testing.T) {
	ctx := context.Background()
	oracle := &generationOracle{}
	m := NewMemory(oracle)

	build := func(gen int) *domain.KnowledgeEntry {
		contents := make([]string, 2+gen%5)
		for i := range contents {
			contents[i] = fmt.Sprintf("gen%d:chunk %d", gen, i)
		}
		return entryWithChunks("policy", "", contents...)
	}
	require.NoError(t, m.Upsert(ctx, build(0)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for gen := 1; gen <= 300; gen++ {
			assert.NoError(t, m.Upsert(ctx, build(gen)))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				results, err := m.Search(ctx, "policy", 1, "")
				assert.NoError(t, err)
				assert.Len(t, results, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(0), oracle.mixed.Load())
	assert.Equal(t, int64(1200), oracle.calls.Load())
}

type shortOracle struct{}

func (shortOracle) Score(ctx context.Context, query string, chunks []domain.KnowledgeChunk) ([]float64, error) {
	return []float64{}, nil
}

func TestMemory_SearchOracleMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(shortOracle{})
	require.NoError(t, m.Upsert(ctx, entryWithChunks("a", "", "text")))

	_, err := m.Search(ctx, "text", 1, "")
	assert.ErrorContains(t, err, "returned 0 scores for 1 chunks")
}
