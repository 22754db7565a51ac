package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/replygate/internal/api"
	"github.com/cloo-solutions/replygate/internal/api/middleware"
	"github.com/cloo-solutions/replygate/internal/domain"
	"github.com/cloo-solutions/replygate/internal/pagination"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/go-chi/chi/v5"
)

type ResponseService interface {
	Generate(ctx context.Context, ticketID string, opts service.GenerateOptions) (*domain.AIResponse, error)
	Transition(ctx context.Context, id string, req service.TransitionRequest) (*domain.AIResponse, error)
	Get(ctx context.Context, id string) (*domain.AIResponse, error)
	ListByTicket(ctx context.Context, ticketID string) ([]*domain.AIResponse, error)
	History(ctx context.Context, id string) ([]*domain.ReviewDecision, error)
	ListPendingReview(ctx context.Context, input service.ListPendingInput) (*service.ListPendingOutput, error)
}

type ResponseHandler struct {
	svc ResponseService
}

func NewResponseHandler(svc ResponseService) *ResponseHandler {
	return &ResponseHandler{svc: svc}
}

type HistoryMessage struct {
	Direction string `json:"direction"`
	Author    string `json:"author"`
	Body      string `json:"body"`
}

type GenerateRequest struct {
	// IncludeKnowledgeBase defaults to true when omitted.
	IncludeKnowledgeBase *bool            `json:"include_knowledge_base"`
	Model                *string          `json:"model"`
	Temperature          *float64         `json:"temperature"`
	MaxTokens            *int             `json:"max_tokens"`
	ConversationHistory  []HistoryMessage `json:"conversation_history"`
}

type TransitionBody struct {
	Reason string `json:"reason"`
	Text   string `json:"response_text"`
}

type DecisionResponse struct {
	ID             string `json:"id"`
	ResponseID     string `json:"response_id"`
	Action         string `json:"action"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	Actor          string `json:"actor"`
	Reason         string `json:"reason,omitempty"`
	PreviousText   string `json:"previous_text,omitempty"`
	CreatedAt      string `json:"created_at"`
}

func decisionToResponse(d *domain.ReviewDecision) DecisionResponse {
	return DecisionResponse{
		ID:             d.ID,
		ResponseID:     d.ResponseID,
		Action:         string(d.Action),
		PreviousStatus: string(d.PreviousStatus),
		NewStatus:      string(d.NewStatus),
		Actor:          d.Actor,
		Reason:         d.Reason,
		PreviousText:   d.PreviousText,
		CreatedAt:      d.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (h *ResponseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := service.GenerateOptions{
		IncludeKnowledgeBase: req.IncludeKnowledgeBase == nil || *req.IncludeKnowledgeBase,
		Model:                req.Model,
		Temperature:          req.Temperature,
		MaxTokens:            req.MaxTokens,
	}
	for _, m := range req.ConversationHistory {
		dir := domain.MessageDirection(m.Direction)
		if dir != domain.MessageDirectionInbound && dir != domain.MessageDirectionOutbound {
			api.Error(w, http.StatusBadRequest, "conversation_history direction must be inbound or outbound")
			return
		}
		opts.ConversationHistory = append(opts.ConversationHistory, domain.TicketMessage{
			Direction: dir,
			Author:    m.Author,
			Body:      m.Body,
		})
	}

	resp, err := h.svc.Generate(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, resp)
}

func (h *ResponseHandler) ListByTicket(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListByTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ResponseHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *ResponseHandler) History(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]DecisionResponse, len(decisions))
	for i, d := range decisions {
		items[i] = decisionToResponse(d)
	}
	api.Success(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ResponseHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := service.ListPendingInput{
		Cursor: q.Get("cursor"),
		Filter: service.PendingFilter{TicketPriority: domain.TicketPriority(q.Get("priority"))},
	}

	var err error
	if input.Filter.MinConfidence, err = parseOptionalFloat(q.Get("min_confidence")); err != nil {
		api.Error(w, http.StatusBadRequest, "min_confidence must be a number")
		return
	}
	if input.Filter.MaxConfidence, err = parseOptionalFloat(q.Get("max_confidence")); err != nil {
		api.Error(w, http.StatusBadRequest, "max_confidence must be a number")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		input.Limit = limit
	}

	out, err := h.svc.ListPendingReview(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, pagination.PageResult[*domain.AIResponse]{
		Items:   out.Items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

func (h *ResponseHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReviewActionApprove)
}

func (h *ResponseHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReviewActionReject)
}

func (h *ResponseHandler) Edit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReviewActionEdit)
}

func (h *ResponseHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReviewActionSend)
}

func (h *ResponseHandler) transition(w http.ResponseWriter, r *http.Request, action domain.ReviewAction) {
	var body TransitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.svc.Transition(r.Context(), chi.URLParam(r, "id"), service.TransitionRequest{
		Action: action,
		Actor:  middleware.GetReviewer(r.Context()),
		Reason: body.Reason,
		Text:   body.Text,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

func parseOptionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
