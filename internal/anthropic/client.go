// Package anthropic answers chat messages through the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pathakanu/ashx/internal/model"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-3-5-haiku-latest"

const (
	maxTokens      = 1024
	requestTimeout = 30 * time.Second
)

// ErrClientNotInitialised is returned when no API key was configured.
var ErrClientNotInitialised = errors.New("anthropic client not initialised")

// Client wraps the Anthropic SDK.
type Client struct {
	client *anthropic.Client
	model  string
}

// New returns a client. Without an apiKey every call returns ErrClientNotInitialised.
func New(apiKey, chatModel string, opts ...option.RequestOption) *Client {
	if chatModel == "" {
		chatModel = DefaultModel
	}
	if apiKey == "" {
		return &Client{model: chatModel}
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Client{client: &client, model: chatModel}
}

// Complete sends history followed by prompt and returns the first text block
// of the reply. System messages in history become the system prompt.
func (c *Client) Complete(ctx context.Context, history []model.ChatMessage, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrClientNotInitialised
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	var system []anthropic.TextBlockParam
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case model.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}
