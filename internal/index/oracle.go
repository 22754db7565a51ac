// Package index answers similarity queries over knowledge chunks.
//
// Scoring is delegated to a SimilarityOracle (or to pgvector for the vector
// index); this package owns filtering, merging chunk hits by entry and limiting.
package index

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// SimilarityOracle scores each chunk against query. Scores are returned in
// chunk order; higher means more similar.
type SimilarityOracle interface {
	Score(ctx context.Context, query string, chunks []domain.KnowledgeChunk) ([]float64, error)
}

// EmbeddingClient generates an embedding vector for text.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// LexicalOracle scores chunks by the fraction of distinct query terms they contain.
// It needs no external service and is deterministic.
type LexicalOracle struct{}

func (LexicalOracle) Score(ctx context.Context, query string, chunks []domain.KnowledgeChunk) ([]float64, error) {
	terms := tokenize(query)
	scores := make([]float64, len(chunks))
	if len(terms) == 0 {
		return scores, nil
	}
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		have := tokenize(c.Content)
		matched := 0
		for t := range terms {
			if _, ok := have[t]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(terms))
	}
	return scores, nil
}

func tokenize(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

// EmbeddingOracle embeds the query once and scores chunks by cosine similarity
// against their stored embeddings. Chunks without an embedding score zero.
type EmbeddingOracle struct {
	client EmbeddingClient
}

func NewEmbeddingOracle(client EmbeddingClient) *EmbeddingOracle {
	return &EmbeddingOracle{client: client}
}

func (o *EmbeddingOracle) Score(ctx context.Context, query string, chunks []domain.KnowledgeChunk) ([]float64, error) {
	vec, err := o.client.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	scores := make([]float64, len(chunks))
	for i, c := range chunks {
		scores[i] = Cosine(vec, c.Embedding)
	}
	return scores, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty
// or their dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
