package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/musicofhel/enterprise-pipeline/pkg/models"
)

// modelPricing approximates cost per 1M tokens when the provider only
// returns usage counts. Unknown models fall back to the standard rate.
type modelPricing struct {
	inPerMTok  float64
	outPerMTok float64
}

var pricingTable = map[string]modelPricing{
	"gpt-4o-mini": {inPerMTok: 0.15, outPerMTok: 0.60},
	"gpt-4o":      {inPerMTok: 2.50, outPerMTok: 10.00},
	"o3-mini":     {inPerMTok: 1.10, outPerMTok: 4.40},
}

var defaultPricing = modelPricing{inPerMTok: 2.50, outPerMTok: 10.00}

// OpenAIClient implements Client over the OpenAI chat completions API.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient builds a client. baseURL may be empty for the public
// endpoint; set it for OpenAI-compatible gateways.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// Generate issues one chat completion. The caller's ctx carries the
// request deadline; cancellation aborts the outstanding call and is
// surfaced as models.ErrCancelled.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (models.Generation, error) {
	userContent := req.Question
	if req.Context != "" {
		userContent = fmt.Sprintf("Context:\n%s\n\nQuestion: %s", req.Context, req.Question)
	}

	params := openai.ChatCompletionNewParams{
		Model: req.ModelID,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(userContent),
		},
		Temperature:         openai.Float(req.Limits.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.Limits.MaxOutputTokens)),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.Generation{}, fmt.Errorf("%w: %v", models.ErrCancelled, err)
		}
		return models.Generation{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return models.Generation{}, fmt.Errorf("%w: empty choices", ErrGenerationFailed)
	}

	choice := resp.Choices[0]
	tokensIn := int(resp.Usage.PromptTokens)
	tokensOut := int(resp.Usage.CompletionTokens)

	pricing, ok := pricingTable[req.ModelID]
	if !ok {
		pricing = defaultPricing
	}
	cost := float64(tokensIn)*pricing.inPerMTok/1e6 + float64(tokensOut)*pricing.outPerMTok/1e6

	return models.Generation{
		AnswerText:   choice.Message.Content,
		ModelID:      resp.Model,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		CostUSD:      cost,
		LatencyMS:    time.Since(start).Milliseconds(),
		FinishReason: string(choice.FinishReason),
	}, nil
}
