package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// ChatChannel posts a short human-readable line to an incoming-webhook chat
// integration that accepts {"text": "..."}.
type ChatChannel struct {
	url        string
	httpClient *http.Client
}

func NewChatChannel(url string) *ChatChannel {
	return &ChatChannel{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Deliver(ctx context.Context, event domain.LifecycleEvent) error {
	body, err := json.Marshal(map[string]string{"text": FormatChatText(event)})
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doPost(c.httpClient, req)
}

// FormatChatText renders event as one line, for example
// "AI response r1 for ticket #t1 (Refund not received) approved, confidence 0.82".
func FormatChatText(event domain.LifecycleEvent) string {
	var b strings.Builder
	verb := strings.TrimPrefix(string(event.Name), "ai.response.")

	respID, ticketID := "?", "?"
	if event.AIResponse != nil {
		respID = event.AIResponse.ID
		ticketID = event.AIResponse.TicketID
	}
	fmt.Fprintf(&b, "AI response %s for ticket #%s", respID, ticketID)
	if event.Ticket != nil && event.Ticket.Subject != "" {
		fmt.Fprintf(&b, " (%s)", event.Ticket.Subject)
	}
	fmt.Fprintf(&b, " %s", verb)
	if event.AIResponse != nil && event.AIResponse.Confidence != nil {
		fmt.Fprintf(&b, ", confidence %.2f", *event.AIResponse.Confidence)
	}
	if event.Reason != "" {
		fmt.Fprintf(&b, ": %s", event.Reason)
	}
	return b.String()
}
