package domain

import "time"

// KnowledgeChunk is a retrievable span of a KnowledgeEntry. Chunks are never
// mutated; a content change produces a new chunk set.
type KnowledgeChunk struct {
	ID        string
	EntryID   string
	Index     int
	Content   string
	Embedding []float32
	CreatedAt time.Time
}
