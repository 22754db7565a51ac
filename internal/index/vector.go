package index

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// VectorStore persists entries and answers nearest-chunk queries by embedding distance.
type VectorStore interface {
	UpsertEntry(ctx context.Context, entry *domain.KnowledgeEntry) error
	GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	ListEntries(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error)
	NearestChunks(ctx context.Context, embedding []float32, k int, category string) ([]ChunkHit, error)
}

// candidateFactor widens the chunk query so that several chunks of one entry
// do not crowd other entries out of the final limit.
const candidateFactor = 4

// Vector is a KnowledgeIndex backed by a VectorStore; the store acts as the
// similarity oracle.
type Vector struct {
	store    VectorStore
	embedder EmbeddingClient
}

func NewVector(store VectorStore, embedder EmbeddingClient) *Vector {
	return &Vector{store: store, embedder: embedder}
}

func (v *Vector) Upsert(ctx context.Context, entry *domain.KnowledgeEntry) error {
	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge entry", err)
	}
	for _, c := range entry.Chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %d of entry %s has no embedding", c.Index, entry.ID)
		}
	}
	return v.store.UpsertEntry(ctx, entry)
}

func (v *Vector) Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	return v.store.GetEntry(ctx, id)
}

func (v *Vector) List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error) {
	return v.store.ListEntries(ctx, includeInactive)
}

func (v *Vector) Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	vec, err := v.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := v.store.NearestChunks(ctx, vec, limit*candidateFactor, category)
	if err != nil {
		return nil, err
	}
	return Aggregate(hits, category, limit), nil
}
