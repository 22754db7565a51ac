package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// KnowledgeEntry is a reference document that drafts can cite.
// Chunks are owned by the entry and replaced as a set whenever content changes.
type KnowledgeEntry struct {
	ID        string
	Title     string
	Content   string
	Category  string
	Tags      []string
	Active    bool
	Chunks    []KnowledgeChunk
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewKnowledgeEntry creates an active KnowledgeEntry without chunks
func NewKnowledgeEntry(id, title, content, category string, tags []string, now time.Time) *KnowledgeEntry {
	return &KnowledgeEntry{
		ID:        id,
		Title:     title,
		Content:   content,
		Category:  category,
		Tags:      NormalizeTags(tags),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ScoredEntry pairs an entry with the best similarity of any of its chunks.
type ScoredEntry struct {
	Entry      *KnowledgeEntry
	Similarity float64
	// BestChunk is the chunk that produced Similarity.
	BestChunk *KnowledgeChunk
}

// ValidateKnowledgeEntry validates a KnowledgeEntry instance
func ValidateKnowledgeEntry(e *KnowledgeEntry) error {
	if e == nil {
		return fmt.Errorf("knowledge entry cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("knowledge entry ID is required")
	}

	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("knowledge entry Title is required")
	}

	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("knowledge entry Content is required")
	}

	for i, c := range e.Chunks {
		if c.EntryID != e.ID {
			return fmt.Errorf("chunk %d belongs to entry %s, not %s", i, c.EntryID, e.ID)
		}
		if c.Index != i {
			return fmt.Errorf("chunk %d has out of order index %d", i, c.Index)
		}
	}

	return nil
}

// NormalizeTags lowercases, trims and deduplicates tags, returning them sorted.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so snapshot holders never share mutable slices.
func (e *KnowledgeEntry) Clone() *KnowledgeEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	c.Chunks = make([]KnowledgeChunk, len(e.Chunks))
	copy(c.Chunks, e.Chunks)
	return &c
}
