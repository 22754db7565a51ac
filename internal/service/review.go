package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/cloo-solutions/replygate/internal/telemetry"
)

// ResponseRepository persists AI responses.
type ResponseRepository interface {
	Create(ctx context.Context, r *domain.AIResponse) error
	GetByID(ctx context.Context, id string) (*domain.AIResponse, error)
	ListByTicket(ctx context.Context, ticketID string) ([]*domain.AIResponse, error)
	ListPendingReview(ctx context.Context, filter PendingFilter, cursor *pagination.Cursor, limit int) (*ResponsePageResult, error)
	// CompareAndSetStatus moves a response from one status to another and
	// returns domain.ErrStatusConflict when the stored status is not from.
	CompareAndSetStatus(ctx context.Context, id string, from, to domain.ResponseStatus, text *string, at time.Time) (*domain.AIResponse, error)
}

// ReviewRepository persists review decisions.
type ReviewRepository interface {
	Create(ctx context.Context, d *domain.ReviewDecision) error
	ListByResponse(ctx context.Context, responseID string) ([]*domain.ReviewDecision, error)
}

// TicketRepository reads tickets and appends outbound messages.
type TicketRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	AppendMessage(ctx context.Context, m *domain.TicketMessage) error
}

// PendingFilter narrows the review queue. Nil bounds are open.
type PendingFilter struct {
	MinConfidence  *float64
	MaxConfidence  *float64
	TicketPriority domain.TicketPriority
}

type ResponsePageResult struct {
	Items      []*domain.AIResponse
	NextCursor string
	HasMore    bool
}

// TransitionRequest is a requested status change for one response.
type TransitionRequest struct {
	Action domain.ReviewAction
	Actor  string
	Reason string
	// Text is required for edit.
	Text string
}

// TransitionResult describes the outcome of a transition request.
// Decision is nil when the request was a no-op.
type TransitionResult struct {
	Response *domain.AIResponse
	Decision *domain.ReviewDecision
	Applied  bool
}

const defaultActor = "reviewer"

// ReviewGate validates and applies status transitions. Each transition is a
// compare-and-swap on the stored status, so concurrent requests on one
// response cannot both succeed.
type ReviewGate struct {
	responses ResponseRepository
	txRunner  TxRunner
	uuidGen   UUIDGenerator
	now       func() time.Time
}

func NewReviewGate(responses ResponseRepository, txRunner TxRunner) *ReviewGate {
	return &ReviewGate{
		responses: responses,
		txRunner:  txRunner,
		uuidGen:   &DefaultUUIDGenerator{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply runs req against the response identified by id.
func (g *ReviewGate) Apply(ctx context.Context, id string, req TransitionRequest) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReviewGate.Apply", telemetry.SpanAttributes{
		ResponseID: id,
		Operation:  string(req.Action),
	})
	defer span.End()

	if !req.Action.IsValid() {
		return nil, domain.ErrInvalidAction
	}
	if req.Action == domain.ReviewActionEdit && strings.TrimSpace(req.Text) == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message,
			fmt.Errorf("edit requires response text"))
	}
	if req.Actor == "" {
		req.Actor = defaultActor
		if req.Action == domain.ReviewActionSend {
			req.Actor = domain.ActorSystem
		}
	}

	// A lost compare-and-swap is re-evaluated once against the fresh status:
	// it becomes a no-op if the winner reached the same target, otherwise an
	// InvalidTransition.
	var lastStatus domain.ResponseStatus
	for attempt := 0; attempt < 2; attempt++ {
		cur, err := g.responses.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		lastStatus = cur.Status

		next, noop, err := domain.EvaluateTransition(cur.Status, req.Action)
		if err != nil {
			return nil, err
		}
		if noop {
			if req.Action == domain.ReviewActionEdit && req.Text != cur.ResponseText {
				return nil, domain.NewInvalidTransition(cur.Status, req.Action)
			}
			return &TransitionResult{Response: cur}, nil
		}

		res, err := g.commit(ctx, cur, next, req)
		if errors.Is(err, domain.ErrStatusConflict) {
			continue
		}
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		return res, nil
	}
	return nil, domain.NewInvalidTransition(lastStatus, req.Action)
}

func (g *ReviewGate) commit(ctx context.Context, cur *domain.AIResponse, next domain.ResponseStatus, req TransitionRequest) (*TransitionResult, error) {
	now := g.now()
	decision := &domain.ReviewDecision{
		ID:             g.uuidGen.NewString(),
		ResponseID:     cur.ID,
		Action:         req.Action,
		PreviousStatus: cur.Status,
		NewStatus:      next,
		Actor:          req.Actor,
		Reason:         req.Reason,
		CreatedAt:      now,
	}

	var text *string
	if req.Action == domain.ReviewActionEdit {
		decision.PreviousText = cur.ResponseText
		text = &req.Text
	}

	var updated *domain.AIResponse
	err := g.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		var err error
		updated, err = repos.Responses().CompareAndSetStatus(ctx, cur.ID, cur.Status, next, text, now)
		if err != nil {
			return err
		}
		if err := repos.Reviews().Create(ctx, decision); err != nil {
			return fmt.Errorf("failed to record review decision: %w", err)
		}
		if next == domain.ResponseStatusSent {
			if err := repos.Tickets().AppendMessage(ctx, g.outboundMessage(updated, now)); err != nil {
				return fmt.Errorf("failed to append outbound message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.AddBreadcrumb(ctx, "review", fmt.Sprintf("%s %s: %s -> %s by %s", req.Action, cur.ID, cur.Status, next, req.Actor))
	return &TransitionResult{Response: updated, Decision: decision, Applied: true}, nil
}

func (g *ReviewGate) outboundMessage(r *domain.AIResponse, at time.Time) *domain.TicketMessage {
	return &domain.TicketMessage{
		ID:        g.uuidGen.NewString(),
		TicketID:  r.TicketID,
		Direction: domain.MessageDirectionOutbound,
		Author:    "ai:" + r.ID,
		Body:      r.ResponseText,
		CreatedAt: at,
	}
}
