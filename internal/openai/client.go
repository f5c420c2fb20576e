package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/pathakanu/ashx/internal/model"
)

const (
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "llama-3.1-8b-instant"

	requestTimeout = 30 * time.Second
)

// Client wraps the OpenAI SDK for chat completions.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// New returns a client for any OpenAI-compatible API. Without an apiKey the
// client is inert and every call returns ErrClientNotInitialised.
func New(apiKey, baseURL, chatModel string, opts ...option.RequestOption) *Client {
	if chatModel == "" {
		chatModel = DefaultModel
	}
	if apiKey == "" {
		return &Client{model: openai.ChatModel(chatModel)}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithBaseURL(baseURL)}, opts...)
	client := openai.NewClient(opts...)
	return &Client{
		client: &client,
		model:  openai.ChatModel(chatModel),
	}
}

// Complete sends the conversation history followed by prompt and returns the
// assistant's reply.
func (c *Client) Complete(ctx context.Context, history []model.ChatMessage, prompt string) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrClientNotInitialised
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	for _, m := range history {
		if msg, ok := toParam(m); ok {
			messages = append(messages, msg)
		}
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(prompt),
			},
		},
	})

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toParam(m model.ChatMessage) (openai.ChatCompletionMessageParamUnion, bool) {
	if strings.TrimSpace(m.Content) == "" {
		return openai.ChatCompletionMessageParamUnion{}, false
	}
	switch m.Role {
	case model.RoleSystem:
		return openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
			},
		}, true
	case model.RoleAssistant:
		return openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
			},
		}, true
	case model.RoleUser:
		return openai.ChatCompletionMessageParamUnion{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
			},
		}, true
	default:
		return openai.ChatCompletionMessageParamUnion{}, false
	}
}
