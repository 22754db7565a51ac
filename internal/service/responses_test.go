package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type responseFixture struct {
	store      *memStore
	gen        *MockGenerator
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
	svc        *ResponseService
}

func newResponseFixture(t *testing.T, settings domain.AISettings, idx KnowledgeIndex) *responseFixture {
	t.Helper()
	f := &responseFixture{
		store:      newMemStore(),
		gen:        new(MockGenerator),
		dispatcher: &recordingDispatcher{},
		publisher:  &recordingPublisher{},
	}
	f.store.addTicket(testTicket("t1"))
	f.svc = NewResponseService(ResponseServiceDeps{
		Generator:  NewResponseGenerator(f.gen, idx, 0),
		Responses:  f.store,
		Reviews:    memReviews{f.store},
		Tickets:    memTickets{f.store},
		Settings:   NewSettingsService(nil, settings),
		TxRunner:   &testTxRunner{repos: testTxRepos{f.store}},
		Dispatcher: f.dispatcher,
		Publisher:  f.publisher,
	})
	return f
}

func (f *responseFixture) returns(text string, confidence float64) {
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(&GenerationResult{
		Text:       text,
		Confidence: &confidence,
	}, nil)
}

func TestResponseService_ThresholdRouting(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       domain.ResponseStatus
	}{
		{"above threshold auto-sends", 0.95, domain.ResponseStatusSent},
		{"at threshold auto-sends", 0.9, domain.ResponseStatusSent},
		{"between floor and threshold", 0.75, domain.ResponseStatusPendingReview},
		{"below threshold", 0.5, domain.ResponseStatusPendingReview},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newResponseFixture(t, testSettings(), nil)
			f.returns("Your refund was issued.", tt.confidence)

			resp, err := f.svc.Generate(context.Background(), "t1", GenerateOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Status)
			assert.InDelta(t, tt.confidence, *resp.Confidence, 1e-9)
		})
	}
}

func TestResponseService_FloorOverridesThreshold(t *testing.T) {
	settings := testSettings()
	settings.AutoSendThreshold = 0.5
	settings.RequireReviewBelow = 0.8
	f := newResponseFixture(t, settings, nil)
	f.returns("draft", 0.7)

	resp, err := f.svc.Generate(context.Background(), "t1", GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusPendingReview, resp.Status)
}

func TestResponseService_AutoSendRecordsAndNotifies(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	f.returns("Your refund was issued.", 0.95)

	resp, err := f.svc.Generate(context.Background(), "t1", GenerateOptions{})
	require.NoError(t, err)

	assert.Equal(t, []domain.EventName{domain.EventResponseGenerated, domain.EventResponseSent}, f.dispatcher.names())

	msgs := f.store.messages("t1")
	require.Len(t, msgs, 4)
	assert.Equal(t, domain.MessageDirectionOutbound, msgs[3].Direction)
	assert.Equal(t, "Your refund was issued.", msgs[3].Body)

	history, err := f.svc.History(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ActorSystem, history[0].Actor)
	assert.Equal(t, domain.ResponseStatusSent, history[0].NewStatus)
}

func TestResponseService_GenerationFailurePersistsNothing(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	f.gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("upstream 503"))

	_, err := f.svc.Generate(context.Background(), "t1", GenerateOptions{})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeGeneration))
	assert.Equal(t, 0, f.store.responseCount())
	assert.Empty(t, f.dispatcher.names())
}

func TestResponseService_UnknownTicket(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)

	_, err := f.svc.Generate(context.Background(), "nope", GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestResponseService_TransitionEmitsEvents(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	f.returns("draft", 0.5)
	ctx := context.Background()

	resp, err := f.svc.Generate(ctx, "t1", GenerateOptions{})
	require.NoError(t, err)

	approved, err := f.svc.Transition(ctx, resp.ID, TransitionRequest{Action: domain.ReviewActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusApproved, approved.Status)

	_, err = f.svc.Transition(ctx, resp.ID, TransitionRequest{Action: domain.ReviewActionApprove})
	require.NoError(t, err)

	sent, err := f.svc.Transition(ctx, resp.ID, TransitionRequest{Action: domain.ReviewActionSend})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusSent, sent.Status)

	assert.Equal(t, []domain.EventName{
		domain.EventResponseGenerated,
		domain.EventResponseApproved,
		domain.EventResponseSent,
	}, f.dispatcher.names())

	var keys []string
	for _, c := range f.publisher.changes {
		keys = append(keys, c.key+"/"+c.kind)
	}
	assert.Contains(t, keys, "ai_response:"+resp.ID+"/"+ChangeStatusChanged)
	assert.Contains(t, keys, "ticket:t1/"+ChangeMessageAdded)
}

func TestResponseService_ListPendingReview(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	ctx := context.Background()
	for _, c := range []float64{0.2, 0.4, 0.55, 0.95} {
		f.gen.On("Generate", mock.Anything, mock.Anything).Return(&GenerationResult{Text: "d", Confidence: ptr(c)}, nil).Once()
		_, err := f.svc.Generate(ctx, "t1", GenerateOptions{})
		require.NoError(t, err)
	}

	all, err := f.svc.ListPendingReview(ctx, ListPendingInput{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 3)

	ranged, err := f.svc.ListPendingReview(ctx, ListPendingInput{Filter: PendingFilter{
		MinConfidence: ptr(0.3),
		MaxConfidence: ptr(0.6),
	}})
	require.NoError(t, err)
	assert.Len(t, ranged.Items, 2)

	first, err := f.svc.ListPendingReview(ctx, ListPendingInput{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	rest, err := f.svc.ListPendingReview(ctx, ListPendingInput{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 1)
	assert.False(t, rest.HasMore)

	urgent, err := f.svc.ListPendingReview(ctx, ListPendingInput{Filter: PendingFilter{TicketPriority: domain.TicketPriorityUrgent}})
	require.NoError(t, err)
	assert.Empty(t, urgent.Items)
}

func TestResponseService_ListPendingReviewValidation(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	ctx := context.Background()

	_, err := f.svc.ListPendingReview(ctx, ListPendingInput{Filter: PendingFilter{MinConfidence: ptr(1.5)}})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	_, err = f.svc.ListPendingReview(ctx, ListPendingInput{Filter: PendingFilter{MinConfidence: ptr(0.8), MaxConfidence: ptr(0.2)}})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	_, err = f.svc.ListPendingReview(ctx, ListPendingInput{Filter: PendingFilter{TicketPriority: "critical"}})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	_, err = f.svc.ListPendingReview(ctx, ListPendingInput{Cursor: "%%%"})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
}

func TestResponseService_ListByTicketAndHistoryNotFound(t *testing.T) {
	f := newResponseFixture(t, testSettings(), nil)
	ctx := context.Background()

	_, err := f.svc.ListByTicket(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTicketNotFound)

	_, err = f.svc.History(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrResponseNotFound)
}

func TestEndToEnd_IngestGenerateEditReject(t *testing.T) {
	ctx := context.Background()

	ingestor, err := NewKnowledgeIngestor(ChunkConfig{MaxChunkSize: 2000, Overlap: 200})
	require.NoError(t, err)
	idx := index.NewMemory(index.LexicalOracle{})
	knowledge := NewKnowledgeService(ingestor, idx)

	content := strings.Repeat("refund", 5000/6) + "ab"
	require.Len(t, content, 5000)
	entry, err := knowledge.Ingest(ctx, IngestInput{Title: "Refund policy", Content: content, Category: "billing"})
	require.NoError(t, err)
	require.Len(t, entry.Chunks, 3)
	for i, c := range entry.Chunks {
		assert.NotEmpty(t, c.Content)
		assert.Equal(t, strings.TrimSpace(c.Content), c.Content)
		if i > 0 {
			prev := []rune(entry.Chunks[i-1].Content)
			assert.True(t, strings.HasPrefix(c.Content, string(prev[len(prev)-200:])))
		}
	}

	settings := testSettings()
	settings.RequireReviewBelow = 0.6
	f := newResponseFixture(t, settings, idx)
	f.returns("Refunds take five days.", 0.4)

	resp, err := f.svc.Generate(ctx, "t1", GenerateOptions{IncludeKnowledgeBase: true})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusPendingReview, resp.Status)

	edited, err := f.svc.Transition(ctx, resp.ID, TransitionRequest{Action: domain.ReviewActionEdit, Text: "Refunds take five business days."})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusEdited, edited.Status)
	assert.Equal(t, "Refunds take five business days.", edited.ResponseText)

	_, err = f.svc.Transition(ctx, resp.ID, TransitionRequest{Action: domain.ReviewActionReject})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeInvalidTransition))

	got, err := f.svc.Get(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseStatusEdited, got.Status)
}
