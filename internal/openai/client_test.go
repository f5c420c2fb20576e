package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/ashx/internal/model"
)

func TestCompleteWithoutKey(t *testing.T) {
	c := New("", "", "")

	_, err := c.Complete(context.Background(), nil, "hello")

	assert.ErrorIs(t, err, ErrClientNotInitialised)
}

func TestCompleteSendsHistoryAndPrompt(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  hi there  "}}]}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, "test-model", option.WithMaxRetries(0))
	history := []model.ChatMessage{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "hello"},
		{Role: "tool", Content: "ignored"},
		{Role: model.RoleUser, Content: "   "},
	}

	reply, err := c.Complete(context.Background(), history, "how are you?")

	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "user", got.Messages[3].Role)
	assert.Equal(t, "how are you?", got.Messages[3].Content)
}

func TestCompleteSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := New("bad", srv.URL, "", option.WithMaxRetries(0))

	_, err := c.Complete(context.Background(), nil, "hello")

	assert.Error(t, err)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := New("k", srv.URL, "", option.WithMaxRetries(0))

	_, err := c.Complete(context.Background(), nil, "hello")

	assert.EqualError(t, err, "no completion received")
}
