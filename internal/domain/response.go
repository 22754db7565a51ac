package domain

import (
	"fmt"
	"time"
)

// ResponseStatus is the review state of an AIResponse
type ResponseStatus string

const (
	ResponseStatusPendingReview ResponseStatus = "pending_review"
	ResponseStatusApproved      ResponseStatus = "approved"
	ResponseStatusRejected      ResponseStatus = "rejected"
	ResponseStatusSent          ResponseStatus = "sent"
	ResponseStatusEdited        ResponseStatus = "edited"
)

// AllResponseStatuses lists every status in declaration order.
var AllResponseStatuses = []ResponseStatus{
	ResponseStatusPendingReview,
	ResponseStatusApproved,
	ResponseStatusRejected,
	ResponseStatusSent,
	ResponseStatusEdited,
}

// IsValid reports whether s is one of the declared statuses.
func (s ResponseStatus) IsValid() bool {
	switch s {
	case ResponseStatusPendingReview, ResponseStatusApproved, ResponseStatusRejected,
		ResponseStatusSent, ResponseStatusEdited:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s ResponseStatus) IsTerminal() bool {
	return s == ResponseStatusRejected || s == ResponseStatusSent
}

// GenerationParams records the parameters a draft was generated with.
type GenerationParams struct {
	Model                string  `json:"model"`
	Temperature          float64 `json:"temperature"`
	MaxTokens            int     `json:"max_tokens"`
	IncludeKnowledgeBase bool    `json:"include_knowledge_base"`
}

// AIResponse is one generation attempt for a ticket. Only Status and
// ResponseText change after creation.
type AIResponse struct {
	ID               string           `json:"id"`
	TicketID         string           `json:"ticket_id"`
	ConversationID   string           `json:"conversation_id,omitempty"`
	Params           GenerationParams `json:"generation_params"`
	ModelUsed        string           `json:"model_used"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	TokensUsed       int              `json:"tokens_used"`
	Cost             float64          `json:"cost"`
	Confidence       *float64         `json:"confidence_score"`
	ConfidenceSource ConfidenceSource `json:"confidence_source"`
	KnowledgeSources []string         `json:"knowledge_sources"`
	ResponseText     string           `json:"response_text"`
	Status           ResponseStatus   `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ConfidenceSource records where a confidence score came from.
type ConfidenceSource string

const (
	// ConfidenceSourceModel means the generator reported the score or token likelihoods.
	ConfidenceSourceModel ConfidenceSource = "model"
	// ConfidenceSourceProxy means the score was synthesized from output features.
	ConfidenceSourceProxy ConfidenceSource = "proxy"
)

// ValidateAIResponse validates an AIResponse instance
func ValidateAIResponse(r *AIResponse) error {
	if r == nil {
		return fmt.Errorf("ai response cannot be nil")
	}

	if r.ID == "" {
		return fmt.Errorf("ai response ID is required")
	}

	if r.TicketID == "" {
		return fmt.Errorf("ai response TicketID is required")
	}

	if !r.Status.IsValid() {
		return fmt.Errorf("ai response Status is invalid: %s", r.Status)
	}

	if r.Confidence != nil && (*r.Confidence < 0 || *r.Confidence > 1) {
		return fmt.Errorf("ai response Confidence must be within [0,1], got %f", *r.Confidence)
	}

	if r.TokensUsed < 0 || r.Cost < 0 {
		return fmt.Errorf("ai response usage cannot be negative")
	}

	return nil
}

// Clone returns a copy whose slices and pointers are not shared with r.
func (r *AIResponse) Clone() *AIResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.KnowledgeSources = append([]string(nil), r.KnowledgeSources...)
	if r.Confidence != nil {
		v := *r.Confidence
		c.Confidence = &v
	}
	return &c
}

// ConfidenceValue returns the score or -1 when unscored.
func (r *AIResponse) ConfidenceValue() float64 {
	if r.Confidence == nil {
		return -1
	}
	return *r.Confidence
}
