package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// EntryStore is the durable side of a Mirrored index.
type EntryStore interface {
	UpsertEntry(ctx context.Context, entry *domain.KnowledgeEntry) error
	GetEntry(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
	ListEntries(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error)
}

// Mirrored writes entries through to a store and serves reads and searches
// from memory. It lets the lexical oracle run over persisted knowledge when no
// embedding provider is configured.
type Mirrored struct {
	*Memory
	store EntryStore

	// writeMu orders store and memory writes identically.
	writeMu sync.Mutex
}

func NewMirrored(mem *Memory, store EntryStore) *Mirrored {
	return &Mirrored{Memory: mem, store: store}
}

// Load copies every stored entry, chunks included, into memory.
func (m *Mirrored) Load(ctx context.Context) (int, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	entries, err := m.store.ListEntries(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored entries: %w", err)
	}
	for _, e := range entries {
		full, err := m.store.GetEntry(ctx, e.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to load entry %s: %w", e.ID, err)
		}
		if err := m.Memory.Upsert(ctx, full); err != nil {
			return 0, fmt.Errorf("failed to index entry %s: %w", e.ID, err)
		}
	}
	return len(entries), nil
}

// Upsert commits to the store first; memory is only updated once the write is durable.
func (m *Mirrored) Upsert(ctx context.Context, entry *domain.KnowledgeEntry) error {
	if err := domain.ValidateKnowledgeEntry(entry); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge entry", err)
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := m.store.UpsertEntry(ctx, entry); err != nil {
		return err
	}
	return m.Memory.Upsert(ctx, entry)
}
