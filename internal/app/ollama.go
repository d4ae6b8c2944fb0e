package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const ollamaService = "Ollama"

// OllamaClient is the local chat provider. No auth; images travel as a
// per-turn base64 list rather than inline content parts.
type OllamaClient struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
	Events  *EventLog
	Logger  zerolog.Logger
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func NewOllamaClient(cfg Config, events *EventLog, logger zerolog.Logger) *OllamaClient {
	return &OllamaClient{
		BaseURL: cfg.OllamaBaseURL,
		Model:   cfg.OllamaModel,
		HTTP:    &http.Client{Timeout: 300 * time.Second},
		Events:  events,
		Logger:  logger.With().Str("service", ollamaService).Logger(),
	}
}

func (c *OllamaClient) Name() string { return ollamaService }

func (c *OllamaClient) Configured() bool { return true }

func (c *OllamaClient) Send(ctx context.Context, transcript []ChatMessage) (string, error) {
	msgs := make([]ollamaMessage, 0, len(transcript))
	for _, m := range transcript {
		om := ollamaMessage{Role: string(m.Role), Content: m.Text}
		if len(m.ImagePNG) > 0 {
			om.Images = []string{base64.StdEncoding.EncodeToString(m.ImagePNG)}
		}
		msgs = append(msgs, om)
	}

	payload, err := json.Marshal(ollamaRequest{Model: c.Model, Messages: msgs, Stream: false})
	if err != nil {
		return "", err
	}

	url := c.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Events.Error(ollamaService, "request failed: "+err.Error(), url, 0)
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Events.Error(ollamaService, "read response failed: "+err.Error(), url, 0)
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{Status: resp.StatusCode, Body: string(raw), URL: url}
		c.Events.Error(ollamaService, "chat request failed: "+httpErr.Error(), url, resp.StatusCode)
		return "", httpErr
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		c.Events.Error(ollamaService, "decode failed: "+err.Error(), url, 0)
		return "", &DecodeError{Detail: err.Error()}
	}
	c.Logger.Debug().Int("turns", len(msgs)).Msg("chat completion ok")
	return parsed.Message.Content, nil
}
