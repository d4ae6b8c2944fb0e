package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChatConfig(openRouterURL, ollamaURL string) Config {
	cfg := DefaultConfig()
	cfg.OpenRouterAPIKey = "or-test"
	cfg.OpenRouterBaseURL = openRouterURL
	cfg.OpenRouterModel = "openai/gpt-4o-mini"
	cfg.OpenRouterReferer = "https://example.com"
	cfg.OpenRouterTitle = "Companion"
	cfg.OllamaBaseURL = ollamaURL
	cfg.OllamaModel = "llava"
	return cfg
}

func TestOpenRouterSend_RequestShapeAndReply(t *testing.T) {
	var captured openRouterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer or-test", r.Header.Get("Authorization"))
		require.Equal(t, "https://example.com", r.Header.Get("HTTP-Referer"))
		require.Equal(t, "Companion", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`{"choices":[{"message":{"content":"hello back"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(testChatConfig(srv.URL, ""), NewEventLog(10), zerolog.Nop())
	transcript := []ChatMessage{
		NewChatMessage(RoleUser, "Screenshot", []byte{0x89, 0x50}),
		NewChatMessage(RoleUser, "what is on my screen?", nil),
	}

	reply, err := client.Send(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "openai/gpt-4o-mini", captured.Model)

	// Image turns become multi-part content with a base64 data URI.
	withImage := captured.Messages[0]
	require.Len(t, withImage.Content, 2)
	assert.Equal(t, "text", withImage.Content[0].Type)
	assert.Equal(t, "image_url", withImage.Content[1].Type)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte{0x89, 0x50}), withImage.Content[1].ImageURL.URL)

	textOnly := captured.Messages[1]
	require.Len(t, textOnly.Content, 1)
	assert.Equal(t, "what is on my screen?", textOnly.Content[0].Text)
}

func TestOpenRouterSend_MultiPartReplyJoinedWithNewlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":[{"type":"text","text":"part one"},{"type":"text","text":"part two"}]}}]}`))
	}))
	defer srv.Close()

	client := NewOpenRouterClient(testChatConfig(srv.URL, ""), NewEventLog(10), zerolog.Nop())
	reply, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})
	require.NoError(t, err)
	assert.Equal(t, "part one\npart two", reply)
}

func TestOpenRouterSend_MissingCredentialsSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cfg := testChatConfig(srv.URL, "")
	cfg.OpenRouterAPIKey = ""
	events := NewEventLog(10)
	client := NewOpenRouterClient(cfg, events, zerolog.Nop())

	assert.False(t, client.Configured())
	_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, int32(0), hits.Load())
	require.Len(t, events.Errors(), 1)
}

func TestOpenRouterSend_HTTPAndDecodeErrorsAreDistinct(t *testing.T) {
	t.Run("non-2xx is HTTPError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		client := NewOpenRouterClient(testChatConfig(srv.URL, ""), NewEventLog(10), zerolog.Nop())
		_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})

		var httpErr *HTTPError
		require.True(t, errors.As(err, &httpErr))
		assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
		assert.Contains(t, httpErr.Body, "rate limited")
	})

	t.Run("garbled 2xx is DecodeError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>nope</html>"))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(testChatConfig(srv.URL, ""), NewEventLog(10), zerolog.Nop())
		_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})

		var decodeErr *DecodeError
		require.True(t, errors.As(err, &decodeErr))
	})
}

func TestOllamaSend_RequestShapeAndReply(t *testing.T) {
	var captured ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Write([]byte(`{"message":{"role":"assistant","content":"local reply"}}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(testChatConfig("", srv.URL), NewEventLog(10), zerolog.Nop())
	transcript := []ChatMessage{
		NewChatMessage(RoleUser, "Screenshot", []byte{1, 2}),
		NewChatMessage(RoleAssistant, "I see a desktop", nil),
		NewChatMessage(RoleUser, "zoom in", nil),
	}

	reply, err := client.Send(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "local reply", reply)

	assert.Equal(t, "llava", captured.Model)
	assert.False(t, captured.Stream)
	require.Len(t, captured.Messages, 3)

	// Images travel as a per-turn base64 list, not inline content.
	require.Len(t, captured.Messages[0].Images, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2}), captured.Messages[0].Images[0])
	assert.Empty(t, captured.Messages[1].Images)
	assert.Equal(t, "assistant", captured.Messages[1].Role)
}

func TestOllamaSend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	events := NewEventLog(10)
	client := NewOllamaClient(testChatConfig("", srv.URL), events, zerolog.Nop())
	_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)

	errs := events.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, http.StatusNotFound, errs[0].StatusCode)
}

func TestChatSend_TransportErrorIsMirroredToEventLog(t *testing.T) {
	// Nothing listens here; the Do call itself fails. This is the everyday
	// "local daemon not running" case and it must reach the event log like
	// any other provider failure.
	deadURL := "http://127.0.0.1:1"

	t.Run("ollama", func(t *testing.T) {
		events := NewEventLog(10)
		client := NewOllamaClient(testChatConfig("", deadURL), events, zerolog.Nop())
		_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})
		require.Error(t, err)

		errs := events.Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, "Ollama", errs[0].Service)
		assert.Contains(t, errs[0].URL, "/api/chat")
	})

	t.Run("openrouter", func(t *testing.T) {
		events := NewEventLog(10)
		client := NewOpenRouterClient(testChatConfig(deadURL, ""), events, zerolog.Nop())
		_, err := client.Send(context.Background(), []ChatMessage{NewChatMessage(RoleUser, "hi", nil)})
		require.Error(t, err)

		errs := events.Errors()
		require.Len(t, errs, 1)
		assert.Equal(t, "OpenRouter", errs[0].Service)
		assert.Contains(t, errs[0].URL, "/chat/completions")
	})
}

func TestJoinChatContent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain string", raw: `"hello"`, want: "hello"},
		{name: "single part", raw: `[{"type":"text","text":"one"}]`, want: "one"},
		{name: "skips non-text parts", raw: `[{"type":"image_url"},{"type":"text","text":"x"}]`, want: "x"},
		{name: "empty raw", raw: ``, wantErr: true},
		{name: "bad shape", raw: `42`, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := joinChatContent(json.RawMessage(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("joinChatContent(%q) expected error", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("joinChatContent(%q) error = %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("joinChatContent(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
