package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const openRouterService = "OpenRouter"

// OpenRouterClient is the cloud chat provider. It speaks the OpenAI-style
// chat/completions protocol with multi-part message content so transcript
// turns can mix text and inline images.
type OpenRouterClient struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
	HTTP    *http.Client
	Events  *EventLog
	Logger  zerolog.Logger
}

type openRouterContentPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterMessage struct {
	Role    string                  `json:"role"`
	Content []openRouterContentPart `json:"content"`
}

type openRouterRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenRouterClient(cfg Config, events *EventLog, logger zerolog.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
		Referer: cfg.OpenRouterReferer,
		Title:   cfg.OpenRouterTitle,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
		Events:  events,
		Logger:  logger.With().Str("service", openRouterService).Logger(),
	}
}

func (c *OpenRouterClient) Name() string { return openRouterService }

// Configured reports whether a credential is available. Probed once at
// orchestrator construction to pick the startup provider.
func (c *OpenRouterClient) Configured() bool { return c.APIKey != "" }

// Send posts the full transcript (the new user turn included) and returns the
// first choice's text content.
func (c *OpenRouterClient) Send(ctx context.Context, transcript []ChatMessage) (string, error) {
	if c.APIKey == "" {
		c.Events.Error(openRouterService, "not configured: missing API key", "", 0)
		return "", fmt.Errorf("%s: %w", openRouterService, ErrMissingCredentials)
	}

	msgs := make([]openRouterMessage, 0, len(transcript))
	for _, m := range transcript {
		parts := []openRouterContentPart{{Type: "text", Text: m.Text}}
		if len(m.ImagePNG) > 0 {
			parts = append(parts, openRouterContentPart{
				Type: "image_url",
				ImageURL: &openRouterImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(m.ImagePNG),
				},
			})
		}
		msgs = append(msgs, openRouterMessage{Role: string(m.Role), Content: parts})
	}

	payload, err := json.Marshal(openRouterRequest{Model: c.Model, Messages: msgs})
	if err != nil {
		return "", err
	}

	url := c.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.Referer != "" {
		req.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		req.Header.Set("X-Title", c.Title)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Events.Error(openRouterService, "request failed: "+err.Error(), url, 0)
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Events.Error(openRouterService, "read response failed: "+err.Error(), url, 0)
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Status: resp.StatusCode, Body: string(raw), URL: url}
		c.Events.Error(openRouterService, "chat request failed: "+httpErr.Error(), url, resp.StatusCode)
		return "", httpErr
	}

	var parsed openRouterResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.Events.Error(openRouterService, "decode failed: "+err.Error(), url, 0)
		return "", &DecodeError{Detail: err.Error()}
	}
	if len(parsed.Choices) == 0 {
		c.Events.Error(openRouterService, "response carried no choices", url, 0)
		return "", &DecodeError{Detail: "response carried no choices"}
	}
	text, err := joinChatContent(parsed.Choices[0].Message.Content)
	if err != nil {
		c.Events.Error(openRouterService, err.Error(), url, 0)
		return "", err
	}
	c.Logger.Debug().Int("turns", len(msgs)).Msg("chat completion ok")
	return text, nil
}

// joinChatContent accepts either a plain string content field or an array of
// typed parts, joining multiple text segments with newlines.
func joinChatContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", &DecodeError{Detail: "choice carried no content"}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var parts []openRouterContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", &DecodeError{Detail: "unrecognized content shape: " + err.Error()}
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n"), nil
}
