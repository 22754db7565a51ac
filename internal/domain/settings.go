package domain

import "fmt"

// AISettings controls generation and routing. They are read before every
// generate call so updates apply to the next draft.
type AISettings struct {
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
	AutoSendThreshold  float64 `json:"auto_send_threshold"`
	RequireReviewBelow float64 `json:"require_review_below"`
	BrandVoice         string  `json:"brand_voice"`
}

// Validate checks ranges of every field.
func (s AISettings) Validate() error {
	if s.Model == "" {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidSettings.Message, fmt.Errorf("model is required"))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidSettings.Message, fmt.Errorf("temperature must be within [0,2]"))
	}
	if s.MaxTokens <= 0 {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidSettings.Message, fmt.Errorf("max_tokens must be positive"))
	}
	if !unitInterval(s.AutoSendThreshold) || !unitInterval(s.RequireReviewBelow) {
		return NewDomainErrorWithCause(ErrCodeValidation, ErrInvalidSettings.Message, fmt.Errorf("thresholds must be within [0,1]"))
	}
	return nil
}

// InitialStatus routes a freshly generated draft. A draft is auto-sent only
// when scored at or above both the auto-send threshold and the review floor.
func (s AISettings) InitialStatus(confidence *float64) ResponseStatus {
	if confidence == nil {
		return ResponseStatusPendingReview
	}
	c := *confidence
	if c < s.RequireReviewBelow {
		return ResponseStatusPendingReview
	}
	if c >= s.AutoSendThreshold {
		return ResponseStatusSent
	}
	return ResponseStatusPendingReview
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
