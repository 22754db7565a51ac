package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/index"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// KnowledgeRepository stores knowledge entries and their embedded chunks and
// serves as the index.VectorStore for pgvector-backed search.
type KnowledgeRepository struct {
	db dbtx
}

func NewKnowledgeRepository(pool *pgxpool.Pool) *KnowledgeRepository {
	return &KnowledgeRepository{db: pool}
}

func NewKnowledgeRepositoryWithTx(tx pgx.Tx) *KnowledgeRepository {
	return &KnowledgeRepository{db: tx}
}

var _ index.VectorStore = (*KnowledgeRepository)(nil)

// UpsertEntry writes the entry row and replaces its chunk set in one
// transaction, so searches never see a mix of old and new chunks.
func (r *KnowledgeRepository) UpsertEntry(ctx context.Context, e *domain.KnowledgeEntry) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO knowledge_entries (id, title, content, category, tags, active, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				title = EXCLUDED.title,
				content = EXCLUDED.content,
				category = EXCLUDED.category,
				tags = EXCLUDED.tags,
				active = EXCLUDED.active,
				updated_at = EXCLUDED.updated_at`,
			e.ID, e.Title, e.Content, e.Category, tagsOrEmpty(e.Tags), e.Active, e.CreatedAt, e.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE entry_id = $1`, e.ID); err != nil {
			return err
		}

		for _, c := range e.Chunks {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			var vec *pgvector.Vector
			if len(c.Embedding) > 0 {
				v := pgvector.NewVector(c.Embedding)
				vec = &v
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO knowledge_chunks (id, entry_id, chunk_index, content, embedding, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				c.ID, e.ID, c.Index, c.Content, vec, createdAt,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *KnowledgeRepository) GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	var e domain.KnowledgeEntry
	err := r.db.QueryRow(ctx,
		`SELECT id, title, content, category, tags, active, created_at, updated_at
		 FROM knowledge_entries WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Title, &e.Content, &e.Category, &e.Tags, &e.Active, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, chunk_index, content, embedding, created_at
		 FROM knowledge_chunks WHERE entry_id = $1 ORDER BY chunk_index`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		c := domain.KnowledgeChunk{EntryID: e.ID}
		var vec *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.Index, &c.Content, &vec, &c.CreatedAt); err != nil {
			return nil, err
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		e.Chunks = append(e.Chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListEntries returns entries without their chunks, most recently updated first.
func (r *KnowledgeRepository) ListEntries(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, title, content, category, tags, active, created_at, updated_at
		 FROM knowledge_entries
		 WHERE active OR $1
		 ORDER BY updated_at DESC, id DESC`,
		includeInactive,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*domain.KnowledgeEntry, 0)
	for rows.Next() {
		var e domain.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Category, &e.Tags, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// NearestChunks returns up to k chunks of active entries ordered by cosine
// distance to embedding. Score is cosine similarity.
func (r *KnowledgeRepository) NearestChunks(ctx context.Context, embedding []float32, k int, category string) ([]index.ChunkHit, error) {
	if k <= 0 {
		k = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.title, e.content, e.category, e.tags, e.active, e.created_at, e.updated_at,
		        c.id, c.chunk_index, c.content, c.created_at,
		        1 - (c.embedding <=> $1) AS score
		 FROM knowledge_chunks c
		 JOIN knowledge_entries e ON e.id = c.entry_id
		 WHERE e.active AND c.embedding IS NOT NULL
		   AND ($2 = '' OR e.category = $2)
		 ORDER BY c.embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), category, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make(map[string]*domain.KnowledgeEntry)
	hits := make([]index.ChunkHit, 0, k)
	for rows.Next() {
		var e domain.KnowledgeEntry
		var c domain.KnowledgeChunk
		var score float64
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Category, &e.Tags, &e.Active, &e.CreatedAt, &e.UpdatedAt,
			&c.ID, &c.Index, &c.Content, &c.CreatedAt, &score); err != nil {
			return nil, err
		}
		c.EntryID = e.ID
		entry, ok := entries[e.ID]
		if !ok {
			entry = &e
			entries[e.ID] = entry
		}
		hits = append(hits, index.ChunkHit{Entry: entry, Chunk: c, Score: score})
	}
	return hits, rows.Err()
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
