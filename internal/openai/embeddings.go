// Package openai adapts the OpenAI API to replygate's embedding and
// generation capabilities.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for chunk and query embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions must match the vector column of knowledge_chunks
	DefaultEmbeddingDimensions = 1536
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

type embeddingAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func (a *embeddingAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}
	return resp.Data[0].Embedding, nil
}

// EmbeddingClient produces fixed-size embeddings for knowledge search.
type EmbeddingClient struct {
	api        EmbeddingAPI
	dimensions int
}

type EmbeddingConfig struct {
	Model      openai.EmbeddingModel
	Dimensions int
}

// NewEmbeddingClient creates an embedding client on top of an API client.
func NewEmbeddingClient(client *openai.Client, cfg EmbeddingConfig) *EmbeddingClient {
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	return newEmbeddingClient(&embeddingAdapter{client: client, model: cfg.Model}, cfg.Dimensions)
}

func newEmbeddingClient(api EmbeddingAPI, dimensions int) *EmbeddingClient {
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	return &EmbeddingClient{api: api, dimensions: dimensions}
}

// GenerateEmbedding generates an embedding for the given text
func (c *EmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	embedding, err := c.api.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrWrongDimensions, len(embedding), c.dimensions)
	}
	return embedding, nil
}

// NewAPIClient builds the go-openai client shared by embeddings and generation.
// A non-empty baseURL targets an OpenAI-compatible endpoint.
func NewAPIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}
