package domain

import (
	"strings"
	"time"
)

// TicketPriority is the urgency assigned to a ticket by the helpdesk.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// MessageDirection tells whether a message came from the customer or went to them.
type MessageDirection string

const (
	MessageDirectionInbound  MessageDirection = "inbound"
	MessageDirectionOutbound MessageDirection = "outbound"
)

// Ticket is owned by the helpdesk; replygate only reads it and appends outbound messages.
type Ticket struct {
	ID             string          `json:"id"`
	Subject        string          `json:"subject"`
	CustomerName   string          `json:"customer_name"`
	CustomerEmail  string          `json:"customer_email"`
	Priority       TicketPriority  `json:"priority"`
	Status         string          `json:"status"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Messages       []TicketMessage `json:"messages,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TicketMessage is one message in a ticket conversation.
type TicketMessage struct {
	ID        string           `json:"id"`
	TicketID  string           `json:"ticket_id"`
	Direction MessageDirection `json:"direction"`
	Author    string           `json:"author"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
}

// LatestInbound returns the most recent non-blank customer message, if any.
func LatestInbound(messages []TicketMessage) (TicketMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Direction == MessageDirectionInbound && strings.TrimSpace(m.Body) != "" {
			return m, true
		}
	}
	return TicketMessage{}, false
}

// IsValidPriority checks if a TicketPriority is valid
func IsValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}
