package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/cloo-solutions/replygate/internal/telemetry"
)

// EventDispatcher delivers lifecycle events without blocking the caller.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.LifecycleEvent)
}

// ChangePublisher broadcasts committed changes to change-stream subscribers.
type ChangePublisher interface {
	Publish(key, kind string, value any)
}

// Change kinds published to subscribers.
const (
	ChangeCreated       = "created"
	ChangeStatusChanged = "status_changed"
	ChangeMessageAdded  = "message_added"
)

// ResponseKey and TicketKey build change-stream resource keys.
func ResponseKey(id string) string { return "ai_response:" + id }
func TicketKey(id string) string   { return "ticket:" + id }

const (
	defaultPendingLimit = 20
	maxPendingLimit     = 100
)

// ResponseService is the operation surface for drafting and reviewing replies.
type ResponseService struct {
	generator  *ResponseGenerator
	gate       *ReviewGate
	responses  ResponseRepository
	reviews    ReviewRepository
	tickets    TicketRepository
	settings   *SettingsService
	txRunner   TxRunner
	dispatcher EventDispatcher
	publisher  ChangePublisher
	uuidGen    UUIDGenerator
	now        func() time.Time
}

// ResponseServiceDeps groups the collaborators of a ResponseService.
type ResponseServiceDeps struct {
	Generator  *ResponseGenerator
	Responses  ResponseRepository
	Reviews    ReviewRepository
	Tickets    TicketRepository
	Settings   *SettingsService
	TxRunner   TxRunner
	Dispatcher EventDispatcher
	Publisher  ChangePublisher
}

func NewResponseService(deps ResponseServiceDeps) *ResponseService {
	return &ResponseService{
		generator:  deps.Generator,
		gate:       NewReviewGate(deps.Responses, deps.TxRunner),
		responses:  deps.Responses,
		reviews:    deps.Reviews,
		tickets:    deps.Tickets,
		settings:   deps.Settings,
		txRunner:   deps.TxRunner,
		dispatcher: deps.Dispatcher,
		publisher:  deps.Publisher,
		uuidGen:    &DefaultUUIDGenerator{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Generate drafts, routes and persists a reply for a ticket. Nothing is
// persisted when generation fails.
func (s *ResponseService) Generate(ctx context.Context, ticketID string, opts GenerateOptions) (*domain.AIResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "ResponseService.Generate", telemetry.SpanAttributes{
		TicketID:  ticketID,
		Operation: "generate",
	})
	defer span.End()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ai settings: %w", err)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	draft, err := s.generator.Generate(ctx, ticket, settings, opts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	confidence := draft.Confidence
	resp := &domain.AIResponse{
		ID:               s.uuidGen.NewString(),
		TicketID:         ticket.ID,
		ConversationID:   ticket.ConversationID,
		Params:           draft.Params,
		ModelUsed:        draft.ModelUsed,
		PromptTokens:     draft.PromptTokens,
		CompletionTokens: draft.CompletionTokens,
		TokensUsed:       draft.TokensUsed,
		Cost:             draft.Cost,
		Confidence:       &confidence,
		ConfidenceSource: draft.ConfidenceSource,
		KnowledgeSources: draft.KnowledgeSources,
		ResponseText:     draft.Text,
		Status:           settings.InitialStatus(&confidence),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if resp.ResponseText == "" {
		resp.Status = domain.ResponseStatusPendingReview
	}
	if err := domain.ValidateAIResponse(resp); err != nil {
		return nil, domain.NewGenerationError("generator produced an invalid response", err)
	}

	var autoSend *domain.ReviewDecision
	if resp.Status == domain.ResponseStatusSent {
		autoSend = &domain.ReviewDecision{
			ID:         s.uuidGen.NewString(),
			ResponseID: resp.ID,
			Action:     domain.ReviewActionSend,
			NewStatus:  domain.ResponseStatusSent,
			Actor:      domain.ActorSystem,
			Reason:     fmt.Sprintf("auto-sent with confidence %.2f", confidence),
			CreatedAt:  now,
		}
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Responses().Create(ctx, resp); err != nil {
			return fmt.Errorf("failed to create ai response: %w", err)
		}
		if autoSend == nil {
			return nil
		}
		if err := repos.Reviews().Create(ctx, autoSend); err != nil {
			return fmt.Errorf("failed to record auto-send decision: %w", err)
		}
		return repos.Tickets().AppendMessage(ctx, &domain.TicketMessage{
			ID:        s.uuidGen.NewString(),
			TicketID:  ticket.ID,
			Direction: domain.MessageDirectionOutbound,
			Author:    "ai:" + resp.ID,
			Body:      resp.ResponseText,
			CreatedAt: now,
		})
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	log.Printf("generate: response %s for ticket %s (confidence %.2f %s, status %s)",
		resp.ID, ticket.ID, confidence, resp.ConfidenceSource, resp.Status)

	s.publish(ResponseKey(resp.ID), ChangeCreated, resp)
	s.publish(TicketKey(ticket.ID), ChangeCreated, resp)
	s.emit(ctx, domain.EventResponseGenerated, ticket, resp, "")
	if autoSend != nil {
		s.publish(TicketKey(ticket.ID), ChangeMessageAdded, resp)
		s.emit(ctx, domain.EventResponseSent, ticket, resp, autoSend.Reason)
	}
	return resp, nil
}

// Transition applies a reviewer or system action to a response.
func (s *ResponseService) Transition(ctx context.Context, id string, req TransitionRequest) (*domain.AIResponse, error) {
	res, err := s.gate.Apply(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		return res.Response, nil
	}

	resp := res.Response
	s.publish(ResponseKey(resp.ID), ChangeStatusChanged, resp)
	s.publish(TicketKey(resp.TicketID), ChangeStatusChanged, resp)
	if resp.Status == domain.ResponseStatusSent {
		s.publish(TicketKey(resp.TicketID), ChangeMessageAdded, resp)
	}

	if name, ok := domain.EventForStatus(resp.Status); ok {
		ticket, err := s.tickets.GetByID(ctx, resp.TicketID)
		if err != nil {
			log.Printf("transition: failed to load ticket %s for event: %v", resp.TicketID, err)
			ticket = &domain.Ticket{ID: resp.TicketID}
		}
		s.emit(ctx, name, ticket, resp, req.Reason)
	}
	return resp, nil
}

// Get retrieves a response by ID.
func (s *ResponseService) Get(ctx context.Context, id string) (*domain.AIResponse, error) {
	return s.responses.GetByID(ctx, id)
}

// ListByTicket returns every response generated for a ticket, newest first.
func (s *ResponseService) ListByTicket(ctx context.Context, ticketID string) ([]*domain.AIResponse, error) {
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		return nil, err
	}
	return s.responses.ListByTicket(ctx, ticketID)
}

// History returns the review decisions applied to a response, oldest first.
func (s *ResponseService) History(ctx context.Context, id string) ([]*domain.ReviewDecision, error) {
	if _, err := s.responses.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.reviews.ListByResponse(ctx, id)
}

type ListPendingInput struct {
	Filter PendingFilter
	Cursor string
	Limit  int
}

type ListPendingOutput struct {
	Items   []*domain.AIResponse
	Cursor  string
	HasMore bool
}

// ListPendingReview returns the review queue, oldest first.
func (s *ResponseService) ListPendingReview(ctx context.Context, input ListPendingInput) (*ListPendingOutput, error) {
	f := input.Filter
	if (f.MinConfidence != nil && (*f.MinConfidence < 0 || *f.MinConfidence > 1)) ||
		(f.MaxConfidence != nil && (*f.MaxConfidence < 0 || *f.MaxConfidence > 1)) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "confidence bounds must be within [0,1]")
	}
	if f.MinConfidence != nil && f.MaxConfidence != nil && *f.MinConfidence > *f.MaxConfidence {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "min_confidence exceeds max_confidence")
	}
	if f.TicketPriority != "" && !domain.IsValidPriority(f.TicketPriority) {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid ticket priority")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	if limit > maxPendingLimit {
		limit = maxPendingLimit
	}

	page, err := s.responses.ListPendingReview(ctx, f, cursor, limit)
	if err != nil {
		return nil, err
	}
	return &ListPendingOutput{Items: page.Items, Cursor: page.NextCursor, HasMore: page.HasMore}, nil
}

func (s *ResponseService) emit(ctx context.Context, name domain.EventName, ticket *domain.Ticket, resp *domain.AIResponse, reason string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Dispatch(ctx, domain.LifecycleEvent{
		ID:         s.uuidGen.NewString(),
		Name:       name,
		Ticket:     ticket,
		AIResponse: resp.Clone(),
		Reason:     reason,
		OccurredAt: s.now(),
	})
}

func (s *ResponseService) publish(key, kind string, value *domain.AIResponse) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(key, kind, value.Clone())
}

