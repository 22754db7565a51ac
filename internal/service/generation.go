package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/telemetry"
)

// ChatRole is the author role of a generation message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one message of the assembled generation context.
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// GenerationRequest is what the external generator receives.
type GenerationRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []ChatMessage
}

// GenerationResult is the raw generator output. Confidence is nil when the
// generator reports no likelihood information.
type GenerationResult struct {
	Text             string
	Confidence       *float64
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
	Model            string
	FinishReason     string
}

// Generator produces a reply for an assembled context.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// GenerateOptions override AISettings for a single call. Nil fields fall back to settings.
type GenerateOptions struct {
	IncludeKnowledgeBase bool
	Model                *string
	Temperature          *float64
	MaxTokens            *int
	// ConversationHistory replaces the ticket's stored messages when non-empty.
	ConversationHistory []domain.TicketMessage
}

// Draft is a normalized, scored generator output that has not been routed or persisted.
type Draft struct {
	Text             string
	Confidence       float64
	ConfidenceSource domain.ConfidenceSource
	KnowledgeSources []string
	Params           domain.GenerationParams
	ModelUsed        string
	PromptTokens     int
	CompletionTokens int
	TokensUsed       int
	Cost             float64
}

const (
	defaultKnowledgeResults = 3
	maxHistoryMessages      = 20
	proxyBase               = 0.3
	proxyPerSource          = 0.1
	proxyMaxSources         = 3
	proxyTruncationPenalty  = 0.2
)

// ResponseGenerator assembles context for a ticket and calls the Generator.
type ResponseGenerator struct {
	generator      Generator
	index          KnowledgeIndex
	timeout        time.Duration
	knowledgeLimit int
}

// NewResponseGenerator creates a ResponseGenerator. A zero timeout leaves the
// caller's deadline in charge. index may be nil when no knowledge base exists.
func NewResponseGenerator(generator Generator, index KnowledgeIndex, timeout time.Duration) *ResponseGenerator {
	return &ResponseGenerator{
		generator:      generator,
		index:          index,
		timeout:        timeout,
		knowledgeLimit: defaultKnowledgeResults,
	}
}

// Generate drafts a reply for ticket. Any generator failure, including an
// expired deadline, is returned as a GenerationError.
func (g *ResponseGenerator) Generate(ctx context.Context, ticket *domain.Ticket, settings domain.AISettings, opts GenerateOptions) (*Draft, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResponseGenerator.Generate", telemetry.SpanAttributes{
		TicketID:  ticket.ID,
		Operation: "generate",
	})
	defer span.End()

	params := resolveParams(settings, opts)

	history := ticket.Messages
	if len(opts.ConversationHistory) > 0 {
		history = opts.ConversationHistory
	}

	var knowledge []domain.ScoredEntry
	if params.IncludeKnowledgeBase && g.index != nil {
		if latest, ok := domain.LatestInbound(history); ok {
			results, err := g.index.Search(ctx, latest.Body, g.knowledgeLimit, "")
			if err != nil {
				// Retrieval is context enrichment; the draft is still produced without it.
				log.Printf("generate: knowledge search failed for ticket %s: %v", ticket.ID, err)
			} else {
				knowledge = results
			}
		}
	}

	req := GenerationRequest{
		Model:       params.Model,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Messages:    buildMessages(ticket, history, knowledge, settings.BrandVoice),
	}

	genCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	result, err := g.generator.Generate(genCtx, req)
	if err == nil && result == nil {
		err = errors.New("generator returned no result")
	}
	if err != nil {
		span.SetError(err)
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() != nil {
			return nil, domain.NewGenerationError("generation timed out", err)
		}
		return nil, domain.NewGenerationError("generation failed", err)
	}

	sources := make([]string, 0, len(knowledge))
	for _, k := range knowledge {
		sources = append(sources, k.Entry.ID)
	}

	draft := &Draft{
		Text:             strings.TrimSpace(result.Text),
		KnowledgeSources: sources,
		Params:           params,
		ModelUsed:        result.Model,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TokensUsed:       result.TotalTokens,
		Cost:             result.Cost,
	}
	if draft.ModelUsed == "" {
		draft.ModelUsed = params.Model
	}
	if draft.TokensUsed == 0 {
		draft.TokensUsed = result.PromptTokens + result.CompletionTokens
	}
	draft.Confidence, draft.ConfidenceSource = scoreDraft(result, draft.Text, len(sources))
	return draft, nil
}

func resolveParams(settings domain.AISettings, opts GenerateOptions) domain.GenerationParams {
	p := domain.GenerationParams{
		Model:                settings.Model,
		Temperature:          settings.Temperature,
		MaxTokens:            settings.MaxTokens,
		IncludeKnowledgeBase: opts.IncludeKnowledgeBase,
	}
	if opts.Model != nil && *opts.Model != "" {
		p.Model = *opts.Model
	}
	if opts.Temperature != nil {
		p.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		p.MaxTokens = *opts.MaxTokens
	}
	return p
}

// scoreDraft prefers the generator's own score. Without one it synthesizes
// 0.3 + 0.1 per knowledge source (at most 3), minus 0.2 for a truncated
// output, and 0 for an empty reply.
func scoreDraft(result *GenerationResult, text string, sources int) (float64, domain.ConfidenceSource) {
	if result.Confidence != nil && !math.IsNaN(*result.Confidence) {
		return clampUnit(*result.Confidence), domain.ConfidenceSourceModel
	}
	return ProxyConfidence(text, sources, result.FinishReason), domain.ConfidenceSourceProxy
}

// ProxyConfidence is the deterministic score used for unscored generator output.
func ProxyConfidence(text string, sources int, finishReason string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	score := proxyBase + proxyPerSource*float64(min(sources, proxyMaxSources))
	if finishReason == "length" {
		score -= proxyTruncationPenalty
	}
	return clampUnit(score)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func buildMessages(ticket *domain.Ticket, history []domain.TicketMessage, knowledge []domain.ScoredEntry, brandVoice string) []ChatMessage {
	var sys strings.Builder
	sys.WriteString("You are a customer support agent drafting a reply to a support ticket.\n")
	if v := strings.TrimSpace(brandVoice); v != "" {
		fmt.Fprintf(&sys, "Brand voice: %s\n", v)
	}
	fmt.Fprintf(&sys, "Ticket subject: %s\n", ticket.Subject)
	if ticket.CustomerName != "" {
		fmt.Fprintf(&sys, "Customer: %s\n", ticket.CustomerName)
	}
	if ticket.Priority != "" {
		fmt.Fprintf(&sys, "Priority: %s\n", ticket.Priority)
	}
	if len(knowledge) > 0 {
		sys.WriteString("\nRelevant knowledge base articles:\n")
		for i, k := range knowledge {
			body := k.Entry.Content
			if k.BestChunk != nil {
				body = k.BestChunk.Content
			}
			fmt.Fprintf(&sys, "[%d] %s\n%s\n\n", i+1, k.Entry.Title, body)
		}
		sys.WriteString("Use the articles when they answer the question. Do not invent policies.\n")
	}
	sys.WriteString("Reply with the message text only.")

	msgs := []ChatMessage{{Role: ChatRoleSystem, Content: sys.String()}}
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, m := range history {
		if strings.TrimSpace(m.Body) == "" {
			continue
		}
		role := ChatRoleUser
		if m.Direction == domain.MessageDirectionOutbound {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: m.Body})
	}
	return msgs
}
