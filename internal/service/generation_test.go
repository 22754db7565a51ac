package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestProxyConfidence(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		sources      int
		finishReason string
		want         float64
	}{
		{"no sources", "Hello", 0, "stop", 0.3},
		{"two sources", "Hello", 2, "stop", 0.5},
		{"sources capped", "Hello", 7, "stop", 0.6},
		{"truncated", "Hello", 1, "length", 0.2},
		{"truncated floor", "Hello", 0, "length", 0.1},
		{"empty text", "  ", 3, "stop", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ProxyConfidence(tt.text, tt.sources, tt.finishReason), 1e-9)
		})
	}
}

func TestResponseGenerator_UsesLatestInboundAsQuery(t *testing.T) {
	gen := new(MockGenerator)
	idx := new(MockKnowledgeIndex)
	ticket := testTicket("t1")

	refunds := &domain.KnowledgeEntry{ID: "kb-refunds", Title: "Refunds", Content: "full text", Active: true}
	idx.On("Search", mock.Anything, "It has been two weeks", defaultKnowledgeResults, "").Return([]domain.ScoredEntry{
		{Entry: refunds, Similarity: 0.8, BestChunk: &domain.KnowledgeChunk{Content: "Refunds take 5-7 days."}},
	}, nil)

	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerationRequest) bool {
		sys := req.Messages[0]
		return req.Model == "gpt-4o-mini" &&
			sys.Role == ChatRoleSystem &&
			strings.Contains(sys.Content, "friendly and concise") &&
			strings.Contains(sys.Content, "Refunds take 5-7 days.") &&
			len(req.Messages) == 4 &&
			req.Messages[2].Role == ChatRoleAssistant
	})).Return(&GenerationResult{
		Text:             " Your refund is on its way. ",
		PromptTokens:     120,
		CompletionTokens: 30,
		Cost:             0.0004,
		Model:            "gpt-4o-mini-2024-07-18",
		FinishReason:     "stop",
	}, nil)

	rg := NewResponseGenerator(gen, idx, time.Second)
	draft, err := rg.Generate(context.Background(), ticket, testSettings(), GenerateOptions{IncludeKnowledgeBase: true})
	require.NoError(t, err)

	assert.Equal(t, "Your refund is on its way.", draft.Text)
	assert.Equal(t, []string{"kb-refunds"}, draft.KnowledgeSources)
	assert.Equal(t, 150, draft.TokensUsed)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", draft.ModelUsed)
	assert.Equal(t, domain.ConfidenceSourceProxy, draft.ConfidenceSource)
	assert.InDelta(t, 0.4, draft.Confidence, 1e-9)
	assert.True(t, draft.Params.IncludeKnowledgeBase)
	gen.AssertExpectations(t)
	idx.AssertExpectations(t)
}

func TestResponseGenerator_SkipsKnowledgeWhenNotRequested(t *testing.T) {
	gen := new(MockGenerator)
	idx := new(MockKnowledgeIndex)
	conf := 0.93
	gen.On("Generate", mock.Anything, mock.Anything).Return(&GenerationResult{Text: "ok", Confidence: &conf}, nil)

	rg := NewResponseGenerator(gen, idx, 0)
	draft, err := rg.Generate(context.Background(), testTicket("t1"), testSettings(), GenerateOptions{})
	require.NoError(t, err)

	assert.Empty(t, draft.KnowledgeSources)
	assert.Equal(t, domain.ConfidenceSourceModel, draft.ConfidenceSource)
	assert.InDelta(t, 0.93, draft.Confidence, 1e-9)
	assert.Equal(t, "gpt-4o-mini", draft.ModelUsed)
	idx.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResponseGenerator_OptionsOverrideSettings(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(req GenerationRequest) bool {
		return req.Model == "gpt-4o" && req.Temperature == 0.1 && req.MaxTokens == 64 && len(req.Messages) == 2
	})).Return(&GenerationResult{Text: "ok"}, nil)

	history := []domain.TicketMessage{{Direction: domain.MessageDirectionInbound, Body: "Override history"}}
	rg := NewResponseGenerator(gen, nil, 0)
	draft, err := rg.Generate(context.Background(), testTicket("t1"), testSettings(), GenerateOptions{
		Model:               ptr("gpt-4o"),
		Temperature:         ptr(0.1),
		MaxTokens:           ptr(64),
		ConversationHistory: history,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", draft.Params.Model)
	gen.AssertExpectations(t)
}

func TestResponseGenerator_ClampsModelConfidence(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(&GenerationResult{Text: "ok", Confidence: ptr(1.7)}, nil)

	draft, err := NewResponseGenerator(gen, nil, 0).Generate(context.Background(), testTicket("t1"), testSettings(), GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, draft.Confidence)
}

func TestResponseGenerator_GeneratorFailure(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	_, err := NewResponseGenerator(gen, nil, 0).Generate(context.Background(), testTicket("t1"), testSettings(), GenerateOptions{})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeGeneration))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestResponseGenerator_SearchFailureStillGenerates(t *testing.T) {
	gen := new(MockGenerator)
	idx := new(MockKnowledgeIndex)
	idx.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("index down"))
	gen.On("Generate", mock.Anything, mock.Anything).Return(&GenerationResult{Text: "ok"}, nil)

	draft, err := NewResponseGenerator(gen, idx, 0).Generate(context.Background(), testTicket("t1"), testSettings(),
		GenerateOptions{IncludeKnowledgeBase: true})
	require.NoError(t, err)
	assert.Empty(t, draft.KnowledgeSources)
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResponseGenerator_Timeout(t *testing.T) {
	rg := NewResponseGenerator(blockingGenerator{}, nil, 20*time.Millisecond)

	start := time.Now()
	_, err := rg.Generate(context.Background(), testTicket("t1"), testSettings(), GenerateOptions{})
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeGeneration))
	assert.ErrorContains(t, err, "timed out")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBuildMessages_TruncatesHistory(t *testing.T) {
	var history []domain.TicketMessage
	for i := 0; i < maxHistoryMessages+5; i++ {
		history = append(history, domain.TicketMessage{Direction: domain.MessageDirectionInbound, Body: "msg"})
	}
	msgs := buildMessages(testTicket("t1"), history, nil, "")
	assert.Len(t, msgs, maxHistoryMessages+1)
	assert.NotContains(t, msgs[0].Content, "Brand voice")
}
