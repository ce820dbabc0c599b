package classifier

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicCompleter sends completion requests to the Anthropic Messages API.
type AnthropicCompleter struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicCompleter returns nil when apiKey is empty. Retries are
// disabled; every call is a single attempt.
func NewAnthropicCompleter(apiKey, model string) *AnthropicCompleter {
	if apiKey == "" {
		return nil
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &AnthropicCompleter{api: &client, model: anthropic.Model(model)}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if c == nil {
		return "", errors.New("anthropic completer not configured")
	}
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}
