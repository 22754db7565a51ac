package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cloo-solutions/replygate/internal/api"
	"github.com/cloo-solutions/replygate/internal/pubsub"
)

const streamHeartbeat = 25 * time.Second

// Subscriber opens change subscriptions by resource key.
type Subscriber interface {
	Subscribe(key string) *pubsub.Subscription
}

type StreamHandler struct {
	subs      Subscriber
	heartbeat time.Duration
}

func NewStreamHandler(subs Subscriber) *StreamHandler {
	return &StreamHandler{subs: subs, heartbeat: streamHeartbeat}
}

// Stream writes changes for ?key= as Server-Sent Events until the client goes away.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		api.Error(w, http.StatusBadRequest, "key is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.subs.Subscribe(key)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed %s\n\n", key)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case change := <-sub.C:
			if sub.Lagged() {
				fmt.Fprint(w, "event: lagged\ndata: {}\n\n")
			}
			data, err := json.Marshal(change)
			if err != nil {
				log.Printf("stream: marshal change %s: %v", change.ResourceKey, err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", change.ChangeKind, data)
			flusher.Flush()
		}
	}
}
