package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookChannel_Deliver(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, "s3cret")
	require.NoError(t, ch.Deliver(context.Background(), testEvent()))

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "ai.response.approved", gotHeaders.Get(EventHeader))
	assert.Equal(t, "ev1", gotHeaders.Get(DeliveryHeader))
	assert.Equal(t, Sign([]byte("s3cret"), gotBody), gotHeaders.Get(SignatureHeader))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "ai.response.approved", payload["event_name"])
	assert.Contains(t, payload, "ticket")
	assert.Contains(t, payload, "ai_response")
}

func TestWebhookChannel_NoSecretNoSignature(t *testing.T) {
	var signed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signed = r.Header.Get(SignatureHeader) != ""
	}))
	defer srv.Close()

	require.NoError(t, NewWebhookChannel(srv.URL, "").Deliver(context.Background(), testEvent()))
	assert.False(t, signed)
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookChannel(srv.URL, "").Deliver(context.Background(), testEvent())
	assert.ErrorContains(t, err, "unexpected status 503: maintenance")
}

func TestSign(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("k"))
	mac.Write([]byte("body"))
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), Sign([]byte("k"), []byte("body")))
	assert.NotEqual(t, Sign([]byte("k"), []byte("a")), Sign([]byte("k"), []byte("b")))
}

func TestChatChannel_Deliver(t *testing.T) {
	var msg map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&msg)
	}))
	defer srv.Close()

	require.NoError(t, NewChatChannel(srv.URL).Deliver(context.Background(), testEvent()))
	assert.Equal(t, "AI response r1 for ticket #t1 (Refund not received) approved, confidence 0.82", msg["text"])
}

func TestFormatChatText_Reason(t *testing.T) {
	ev := testEvent()
	ev.Name = "ai.response.rejected"
	ev.Reason = "wrong tone"
	ev.AIResponse.Confidence = nil
	ev.Ticket = nil
	assert.Equal(t, "AI response r1 for ticket #t1 rejected: wrong tone", FormatChatText(ev))
}
