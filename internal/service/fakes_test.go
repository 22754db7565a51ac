package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/stretchr/testify/mock"
)

// memStore is an in-memory ResponseRepository, ReviewRepository and
// TicketRepository. Each call is atomic.
type memStore struct {
	mu        sync.Mutex
	responses map[string]*domain.AIResponse
	reviews   []*domain.ReviewDecision
	tickets   map[string]*domain.Ticket
	// conflictOnce makes the next CompareAndSetStatus move the response to
	// the given status and report a conflict, simulating a concurrent writer.
	conflictOnce domain.ResponseStatus
}

func newMemStore() *memStore {
	return &memStore{
		responses: map[string]*domain.AIResponse{},
		tickets:   map[string]*domain.Ticket{},
	}
}

func (s *memStore) addTicket(t *domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

func (s *memStore) Create(ctx context.Context, r *domain.AIResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.ID] = r.Clone()
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.AIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, domain.ErrResponseNotFound
	}
	return r.Clone(), nil
}

func (s *memStore) ListByTicket(ctx context.Context, ticketID string) ([]*domain.AIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AIResponse
	for _, r := range s.responses {
		if r.TicketID == ticketID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListPendingReview(ctx context.Context, f PendingFilter, cursor *pagination.Cursor, limit int) (*ResponsePageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AIResponse
	for _, r := range s.responses {
		if r.Status != domain.ResponseStatusPendingReview {
			continue
		}
		if f.MinConfidence != nil && r.ConfidenceValue() < *f.MinConfidence {
			continue
		}
		if f.MaxConfidence != nil && r.ConfidenceValue() > *f.MaxConfidence {
			continue
		}
		if f.TicketPriority != "" {
			t, ok := s.tickets[r.TicketID]
			if !ok || t.Priority != f.TicketPriority {
				continue
			}
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if cursor != nil {
		idx := sort.Search(len(out), func(i int) bool { return out[i].ID > cursor.ID })
		out = out[idx:]
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	var next string
	if hasMore {
		last := out[len(out)-1]
		next = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return &ResponsePageResult{Items: out, NextCursor: next, HasMore: hasMore}, nil
}

func (s *memStore) CompareAndSetStatus(ctx context.Context, id string, from, to domain.ResponseStatus, text *string, at time.Time) (*domain.AIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, domain.ErrResponseNotFound
	}
	if s.conflictOnce != "" {
		r.Status = s.conflictOnce
		s.conflictOnce = ""
		return nil, domain.ErrStatusConflict
	}
	if r.Status != from {
		return nil, domain.ErrStatusConflict
	}
	r.Status = to
	if text != nil {
		r.ResponseText = *text
	}
	r.UpdatedAt = at
	return r.Clone(), nil
}

func (s *memStore) ListByResponse(ctx context.Context, responseID string) ([]*domain.ReviewDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ReviewDecision
	for _, d := range s.reviews {
		if d.ResponseID == responseID {
			c := *d
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) messages(ticketID string) []domain.TicketMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TicketMessage(nil), s.tickets[ticketID].Messages...)
}

func (s *memStore) responseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}

// memReviews and memTickets adapt memStore to the interfaces whose method
// names collide with ResponseRepository.
type memReviews struct{ s *memStore }

func (r memReviews) Create(ctx context.Context, d *domain.ReviewDecision) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *d
	r.s.reviews = append(r.s.reviews, &c)
	return nil
}

func (r memReviews) ListByResponse(ctx context.Context, responseID string) ([]*domain.ReviewDecision, error) {
	return r.s.ListByResponse(ctx, responseID)
}

type memTickets struct{ s *memStore }

func (t memTickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tk, ok := t.s.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	c := *tk
	c.Messages = append([]domain.TicketMessage(nil), tk.Messages...)
	return &c, nil
}

func (t memTickets) AppendMessage(ctx context.Context, m *domain.TicketMessage) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tk, ok := t.s.tickets[m.TicketID]
	if !ok {
		return domain.ErrTicketNotFound
	}
	tk.Messages = append(tk.Messages, *m)
	return nil
}

type testTxRepos struct{ s *memStore }

func (t testTxRepos) Responses() ResponseRepository { return t.s }
func (t testTxRepos) Reviews() ReviewRepository     { return memReviews{t.s} }
func (t testTxRepos) Tickets() TicketRepository     { return memTickets{t.s} }

type testTxRunner struct {
	repos TxRepositories
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(t.repos)
}

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*GenerationResult), args.Error(1)
}

// MockKnowledgeIndex is a mock implementation of KnowledgeIndex
type MockKnowledgeIndex struct {
	mock.Mock
}

func (m *MockKnowledgeIndex) Upsert(ctx context.Context, entry *domain.KnowledgeEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockKnowledgeIndex) Get(ctx context.Context, id string) (*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeIndex) List(ctx context.Context, includeInactive bool) ([]*domain.KnowledgeEntry, error) {
	args := m.Called(ctx, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeEntry), args.Error(1)
}

func (m *MockKnowledgeIndex) Search(ctx context.Context, query string, limit int, category string) ([]domain.ScoredEntry, error) {
	args := m.Called(ctx, query, limit, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredEntry), args.Error(1)
}

// recordingDispatcher captures dispatched events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, event domain.LifecycleEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) names() []domain.EventName {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.EventName, len(d.events))
	for i, e := range d.events {
		out[i] = e.Name
	}
	return out
}

type published struct {
	key, kind string
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []published
}

func (p *recordingPublisher) Publish(key, kind string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, published{key: key, kind: kind})
}

func ptr[T any](v T) *T { return &v }

func testSettings() domain.AISettings {
	return domain.AISettings{
		Model:              "gpt-4o-mini",
		Temperature:        0.7,
		MaxTokens:          1000,
		AutoSendThreshold:  0.9,
		RequireReviewBelow: 0.6,
		BrandVoice:         "friendly and concise",
	}
}

func testTicket(id string) *domain.Ticket {
	return &domain.Ticket{
		ID:             id,
		Subject:        "Refund not received",
		CustomerName:   "Ada",
		Priority:       domain.TicketPriorityHigh,
		ConversationID: "conv-" + id,
		Messages: []domain.TicketMessage{
			{ID: "m1", TicketID: id, Direction: domain.MessageDirectionInbound, Body: "Where is my refund?"},
			{ID: "m2", TicketID: id, Direction: domain.MessageDirectionOutbound, Body: "Let me check."},
			{ID: "m3", TicketID: id, Direction: domain.MessageDirectionInbound, Body: "It has been two weeks"},
		},
	}
}
