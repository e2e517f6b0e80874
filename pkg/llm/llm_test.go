package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"meerchat/pkg/config"
)

func TestOpenAIComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello, meer!"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(config.LLMConfig{
		APIKey:      "sk-test",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-3.5-turbo",
		Temperature: 0.7,
		MaxTokens:   500,
	})
	out, err := c.Complete(context.Background(), "be nice", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello, meer!", out)

	require.Equal(t, "gpt-3.5-turbo", got["model"])
	require.EqualValues(t, 500, got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
	require.Equal(t, "hi", msgs[1].(map[string]any)["content"])
}

func TestOpenAICompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c2","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAI(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-3.5-turbo"})
	out, err := c.Complete(context.Background(), "be nice", "hi")
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestDisabled(t *testing.T) {
	c := New(config.LLMConfig{Mode: "disabled"})
	_, err := c.Complete(context.Background(), "", "hi")
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
