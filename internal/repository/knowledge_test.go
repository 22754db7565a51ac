//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/index"
	"github.com/cloo-solutions/replygate/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axis returns a unit vector along dimension i.
func axis(i int) []float32 {
	v := make([]float32, 1536)
	v[i] = 1
	return v
}

func newEntry(title, category string, embeddings ...[]float32) *domain.KnowledgeEntry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	e := domain.NewKnowledgeEntry(uuid.NewString(), title, title+" content", category, []string{"faq"}, now)
	for i, emb := range embeddings {
		e.Chunks = append(e.Chunks, domain.KnowledgeChunk{
			ID:        uuid.NewString(),
			EntryID:   e.ID,
			Index:     i,
			Content:   title + " chunk",
			Embedding: emb,
			CreatedAt: now,
		})
	}
	return e
}

func TestKnowledgeRepository_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	entry := newEntry("Refunds", "billing", axis(0), axis(1))
	require.NoError(t, repo.UpsertEntry(ctx, entry))

	got, err := repo.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refunds", got.Title)
	assert.Equal(t, []string{"faq"}, got.Tags)
	require.Len(t, got.Chunks, 2)
	assert.Equal(t, 0, got.Chunks[0].Index)
	assert.Equal(t, 1, got.Chunks[1].Index)
	assert.Equal(t, float32(1), got.Chunks[1].Embedding[1])

	// Replacing the chunk set drops the old chunks entirely.
	entry.Chunks = entry.Chunks[:1]
	entry.Title = "Refund policy"
	require.NoError(t, repo.UpsertEntry(ctx, entry))

	got, err = repo.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refund policy", got.Title)
	assert.Len(t, got.Chunks, 1)
}

func TestKnowledgeRepository_GetEntryNotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	_, err := NewKnowledgeRepository(pool).GetEntry(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestKnowledgeRepository_ListEntries(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	active := newEntry("Shipping", "orders", axis(0))
	inactive := newEntry("Legacy", "orders", axis(1))
	inactive.Active = false
	require.NoError(t, repo.UpsertEntry(ctx, active))
	require.NoError(t, repo.UpsertEntry(ctx, inactive))

	list, err := repo.ListEntries(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)
	assert.Empty(t, list[0].Chunks)

	all, err := repo.ListEntries(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestKnowledgeRepository_NearestChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	billing := newEntry("Invoices", "billing", axis(0), axis(2))
	orders := newEntry("Returns", "orders", axis(1))
	hidden := newEntry("Old invoices", "billing", axis(0))
	hidden.Active = false
	for _, e := range []*domain.KnowledgeEntry{billing, orders, hidden} {
		require.NoError(t, repo.UpsertEntry(ctx, e))
	}

	hits, err := repo.NearestChunks(ctx, axis(0), 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, billing.ID, hits[0].Entry.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	for _, h := range hits {
		assert.NotEqual(t, hidden.ID, h.Entry.ID)
	}

	hits, err = repo.NearestChunks(ctx, axis(0), 10, "orders")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, orders.ID, hits[0].Entry.ID)
	assert.InDelta(t, 0.0, hits[0].Score, 1e-6)
}

func TestKnowledgeRepository_VectorIndexSearch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewKnowledgeRepository(pool)
	near := newEntry("Password reset", "account", axis(3), axis(4))
	far := newEntry("Pricing", "billing", axis(5))
	require.NoError(t, repo.UpsertEntry(ctx, near))
	require.NoError(t, repo.UpsertEntry(ctx, far))

	idx := index.NewVector(repo, fixedEmbedder{vec: axis(4)})
	results, err := idx.Search(ctx, "reset my password", 5, "")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, near.ID, results[0].Entry.ID)
	assert.Equal(t, 1, results[0].BestChunk.Index)
}

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}
