//go:build integration

package openai

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping integration test")
	}
	api := NewAPIClient(apiKey, "")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	embedding, err := NewEmbeddingClient(api, EmbeddingConfig{}).GenerateEmbedding(ctx, "Refund policy")
	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)

	res, err := NewGenerator(api).Generate(ctx, service.GenerationRequest{
		Model:     "gpt-4o-mini",
		MaxTokens: 20,
		Messages:  []service.ChatMessage{{Role: service.ChatRoleUser, Content: "Say hello."}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Text)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.5, *res.Confidence, 0.5)
}
