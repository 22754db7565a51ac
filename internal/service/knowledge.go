package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// KnowledgeIndex stores knowledge entries and answers similarity queries.
// Upsert replaces an entry's chunk set atomically.
type KnowledgeIndex interface {
	Upsert(ctx context.Context, entry *domain.KnowledgeEntry) error
	Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error)
	Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// DocumentSource fetches raw document text by key.
type DocumentSource interface {
	GetObjectText(ctx context.Context, key string) (string, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

const (
	embedConcurrency = 4
	entryLockStripes = 64
)

// KnowledgeService handles ingestion and retrieval of knowledge entries
type KnowledgeService struct {
	ingestor *KnowledgeIngestor
	index    KnowledgeIndex
	embedder EmbeddingClient
	source   DocumentSource
	uuidGen  UUIDGenerator
	now      func() time.Time

	// entryLocks serialize read-modify-write of one entry.
	entryLocks [entryLockStripes]sync.Mutex
}

// KnowledgeOption configures a KnowledgeService.
type KnowledgeOption func(*KnowledgeService)

// WithEmbedder makes the service embed every chunk before it is committed.
func WithEmbedder(e EmbeddingClient) KnowledgeOption {
	return func(s *KnowledgeService) { s.embedder = e }
}

// WithDocumentSource enables ingestion from stored documents.
func WithDocumentSource(src DocumentSource) KnowledgeOption {
	return func(s *KnowledgeService) { s.source = src }
}

// WithKnowledgeUUIDGen overrides identifier generation (for testing).
func WithKnowledgeUUIDGen(g UUIDGenerator) KnowledgeOption {
	return func(s *KnowledgeService) { s.uuidGen = g }
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(ingestor *KnowledgeIngestor, index KnowledgeIndex, opts ...KnowledgeOption) *KnowledgeService {
	s := &KnowledgeService{
		ingestor: ingestor,
		index:    index,
		uuidGen:  &DefaultUUIDGenerator{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestInput represents the input for ingesting a knowledge entry
type IngestInput struct {
	Title    string
	Content  string
	Category string
	Tags     []string
}

// UpdateKnowledgeInput carries the fields to change; nil fields are kept.
type UpdateKnowledgeInput struct {
	Title    *string
	Content  *string
	Category *string
	Tags     []string
	SetTags  bool
}

// Ingest chunks content and commits a new active entry. Nothing is stored on failure.
func (s *KnowledgeService) Ingest(ctx context.Context, input IngestInput) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Ingest", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	if strings.TrimSpace(input.Title) == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message,
			fmt.Errorf("title is required"))
	}

	now := s.now()
	entry := domain.NewKnowledgeEntry(s.uuidGen.NewString(), strings.TrimSpace(input.Title), input.Content,
		strings.TrimSpace(input.Category), input.Tags, now)

	if err := s.rechunk(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		span.SetError(err)
		return nil, err
	}
	return entry, nil
}

// IngestFromSource reads the document at key and ingests it. Title defaults to the key.
func (s *KnowledgeService) IngestFromSource(ctx context.Context, key string, input IngestInput) (*domain.KnowledgeEntry, error) {
	if s.source == nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document source is not configured")
	}
	text, err := s.source.GetObjectText(ctx, key)
	if err != nil {
		return nil, err
	}
	input.Content = text
	if strings.TrimSpace(input.Title) == "" {
		input.Title = key
	}
	return s.Ingest(ctx, input)
}

// Update applies input to an entry. A content change replaces every chunk.
func (s *KnowledgeService) Update(ctx context.Context, id string, input UpdateKnowledgeInput) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Update", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "update",
	})
	defer span.End()

	unlock := s.lockEntry(id)
	defer unlock()

	entry, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if strings.TrimSpace(*input.Title) == "" {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message,
				fmt.Errorf("title cannot be empty"))
		}
		entry.Title = strings.TrimSpace(*input.Title)
	}
	if input.Category != nil {
		entry.Category = strings.TrimSpace(*input.Category)
	}
	if input.SetTags {
		entry.Tags = domain.NormalizeTags(input.Tags)
	}
	if input.Content != nil && *input.Content != entry.Content {
		entry.Content = *input.Content
		if err := s.rechunk(ctx, entry); err != nil {
			return nil, err
		}
	}
	entry.UpdatedAt = s.now()

	if err := s.index.Upsert(ctx, entry); err != nil {
		span.SetError(err)
		return nil, err
	}
	return entry, nil
}

// Deactivate soft-deletes an entry; it stays listable but is never searched.
func (s *KnowledgeService) Deactivate(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Deactivate", telemetry.SpanAttributes{
		EntryID:   id,
		Operation: "deactivate",
	})
	defer span.End()

	unlock := s.lockEntry(id)
	defer unlock()

	entry, err := s.index.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Active {
		return entry, nil
	}
	entry.Active = false
	entry.UpdatedAt = s.now()
	if err := s.index.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Get retrieves an entry with its chunks.
func (s *KnowledgeService) Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	return s.index.Get(ctx, id)
}

// List returns entries, optionally including deactivated ones.
func (s *KnowledgeService) List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error) {
	return s.index.List(ctx, includeInactive)
}

// Search returns active entries ranked by their best matching chunk.
func (s *KnowledgeService) Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message,
			fmt.Errorf("query is required"))
	}
	return s.index.Search(ctx, query, limit, category)
}

func (s *KnowledgeService) lockEntry(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	mu := &s.entryLocks[h.Sum32()%entryLockStripes]
	mu.Lock()
	return mu.Unlock
}

// rechunk rebuilds entry.Chunks from entry.Content, embedding them when an
// embedder is configured. entry is left untouched on error.
func (s *KnowledgeService) rechunk(ctx context.Context, entry *domain.KnowledgeEntry) error {
	texts, err := s.ingestor.Ingest(entry.Content)
	if err != nil {
		return err
	}

	now := s.now()
	chunks := make([]domain.KnowledgeChunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.KnowledgeChunk{
			ID:        s.uuidGen.NewString(),
			EntryID:   entry.ID,
			Index:     i,
			Content:   t,
			CreatedAt: now,
		}
	}

	if s.embedder != nil {
		if err := s.embedChunks(ctx, chunks); err != nil {
			return err
		}
	}

	entry.Chunks = chunks
	return nil
}

func (s *KnowledgeService) embedChunks(ctx context.Context, chunks []domain.KnowledgeChunk) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i := range chunks {
		g.Go(func() error {
			vec, err := s.embedder.GenerateEmbedding(gCtx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("embedding chunk %d: %w", i, err)
			}
			chunks[i].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}
