package domain

import "time"

// EventName identifies a response lifecycle event.
type EventName string

const (
	EventResponseGenerated EventName = "ai.response.generated"
	EventResponseApproved  EventName = "ai.response.approved"
	EventResponseRejected  EventName = "ai.response.rejected"
	EventResponseSent      EventName = "ai.response.sent"
	EventResponseEdited    EventName = "ai.response.edited"
)

// EventForStatus maps the status a transition lands in to its event.
func EventForStatus(s ResponseStatus) (EventName, bool) {
	switch s {
	case ResponseStatusApproved:
		return EventResponseApproved, true
	case ResponseStatusRejected:
		return EventResponseRejected, true
	case ResponseStatusSent:
		return EventResponseSent, true
	case ResponseStatusEdited:
		return EventResponseEdited, true
	}
	return "", false
}

// LifecycleEvent is the payload handed to notification channels.
type LifecycleEvent struct {
	ID         string      `json:"id"`
	Name       EventName   `json:"event_name"`
	Ticket     *Ticket     `json:"ticket"`
	AIResponse *AIResponse `json:"ai_response"`
	Reason     string      `json:"reason,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
