package openai

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/cloo-solutions/replygate/internal/service"
	openai "github.com/sashabaranov/go-openai"
)

// ChatAPI is the subset of *openai.Client used for generation.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Price is the USD cost per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// Prices maps model name prefixes to their token prices. The longest
// matching prefix wins, so dated snapshots inherit their family's price.
var Prices = map[string]Price{
	"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
	"gpt-4o":        {Input: 2.50, Output: 10.00},
	"gpt-4.1-nano":  {Input: 0.10, Output: 0.40},
	"gpt-4.1-mini":  {Input: 0.40, Output: 1.60},
	"gpt-4.1":       {Input: 2.00, Output: 8.00},
	"gpt-4-turbo":   {Input: 10.00, Output: 30.00},
	"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
}

// Cost returns the USD cost of a completion, or 0 for an unpriced model.
func Cost(model string, promptTokens, completionTokens int) float64 {
	var best string
	for prefix := range Prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}
	p := Prices[best]
	return (float64(promptTokens)*p.Input + float64(completionTokens)*p.Output) / 1e6
}

// Generator drafts replies with the chat completions API. It requests token
// log-probabilities and reports their geometric mean as confidence.
type Generator struct {
	api ChatAPI
}

func NewGenerator(api ChatAPI) *Generator {
	return &Generator{api: api}
}

func (g *Generator) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		LogProbs:    true,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	choice := resp.Choices[0]
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &service.GenerationResult{
		Text:             choice.Message.Content,
		Confidence:       confidenceFromLogProbs(choice.LogProbs),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             Cost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Model:            model,
		FinishReason:     string(choice.FinishReason),
	}, nil
}

// confidenceFromLogProbs returns exp(mean token log-probability), or nil
// when the response carries no log-probabilities.
func confidenceFromLogProbs(lp *openai.LogProbs) *float64 {
	if lp == nil || len(lp.Content) == 0 {
		return nil
	}
	var sum float64
	for _, t := range lp.Content {
		sum += t.LogProb
	}
	c := math.Exp(sum / float64(len(lp.Content)))
	return &c
}
