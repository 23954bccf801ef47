package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feerecon/internal/resilience"
	"github.com/sells-group/feerecon/pkg/anthropic"
	"github.com/sells-group/feerecon/pkg/chatcompat"
)

var zeroTemperature = 0.0

// AnthropicCompleter runs completions on the Anthropic Messages API with
// the system prompt cached across batches.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a Completer for a Claude model.
func NewAnthropicCompleter(client anthropic.Client, model string, maxTokens int64) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: model, maxTokens: maxTokens}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &zeroTemperature,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); code != 0 {
			return "", &resilience.StatusError{Service: "anthropic", Code: code, Body: err.Error()}
		}
		return "", err
	}
	resp.Usage.LogCost(c.model, "amount")
	if resp.StopReason == "max_tokens" {
		return "", eris.Errorf("oracle: reply truncated at %d tokens", c.maxTokens)
	}
	return resp.Text(), nil
}

// ChatCompleter runs completions on an OpenAI-compatible endpoint.
type ChatCompleter struct {
	client    chatcompat.Client
	model     string
	maxTokens int
}

// NewChatCompleter creates a Completer for an OpenAI-compatible model. An
// empty model uses the client's default.
func NewChatCompleter(client chatcompat.Client, model string, maxTokens int) *ChatCompleter {
	return &ChatCompleter{client: client, model: model, maxTokens: maxTokens}
}

func (c *ChatCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	req := chatcompat.ChatCompletionRequest{
		Model: c.model,
		Messages: []chatcompat.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &zeroTemperature,
	}
	if c.maxTokens > 0 {
		req.MaxTokens = &c.maxTokens
	}

	resp, err := c.client.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("oracle: chat completion returned no choices")
	}
	if resp.Choices[0].FinishReason == "length" {
		return "", eris.Errorf("oracle: reply truncated at %d tokens", c.maxTokens)
	}
	return resp.Content(), nil
}
