package llmclient

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hdlmesh/taskmesh/internal/retry"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// AnthropicClient, so tests can substitute a stub instead of a real
// client.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams) (*sdk.Message, error)
}

// AnthropicOptions configures AnthropicClient's default request shape.
type AnthropicOptions struct {
	Model     string
	MaxTokens int64
}

// AnthropicClient implements Client on top of Anthropic's Messages API. It
// is the single concrete LLM gateway adapter wired into the REASONING
// handlers; additional providers can implement the same Client interface
// without any change to the worker dispatch table.
type AnthropicClient struct {
	messages MessagesClient
	opts     AnthropicOptions
}

// NewAnthropicClient builds an AnthropicClient from an Anthropic Messages
// client and options.
func NewAnthropicClient(messages MessagesClient, opts AnthropicOptions) (*AnthropicClient, error) {
	if messages == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &AnthropicClient{messages: messages, opts: opts}, nil
}

// Complete sends req to Anthropic's Messages API and maps the response
// back into a Response, including usage accounting.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	prompt := req.Prompt
	if req.PriorArtifact != "" {
		prompt = fmt.Sprintf("%s\n\nPrior artifact:\n%s", prompt, req.PriorArtifact)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.opts.Model),
		MaxTokens: c.opts.MaxTokens,
		System: []sdk.TextBlockParam{
			{Text: req.System},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		if retry.ClassifyText(err.Error()) {
			return Response{}, retry.NewRetryableError(fmt.Errorf("anthropic: %w", err))
		}
		return Response{}, fmt.Errorf("anthropic: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return Response{
		Text:         text,
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		CostUSD:      estimateCostUSD(c.opts.Model, msg.Usage.InputTokens, msg.Usage.OutputTokens),
	}, nil
}

// estimateCostUSD computes a rough dollar cost from token counts. Pricing
// is not looked up from a live catalog; callers needing exact billing
// should reconcile against their Anthropic invoice.
func estimateCostUSD(model string, inputTokens, outputTokens int64) float64 {
	const inputPerMillion, outputPerMillion = 3.0, 15.0
	return float64(inputTokens)/1_000_000*inputPerMillion + float64(outputTokens)/1_000_000*outputPerMillion
}
