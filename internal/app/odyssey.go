package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const odysseyService = "Odyssey"

// OdysseyClient drives the remote video-generation service: create a job,
// then poll its status until it completes or the poll deadline passes.
type OdysseyClient struct {
	APIKey         string
	DeveloperEmail string
	BaseURL        string
	GeneratePath   string
	JobsPath       string
	PollInterval   time.Duration
	PollDeadline   time.Duration
	HTTP           *http.Client
	Events         *EventLog
	Logger         zerolog.Logger
}

type odysseyGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration"`
	AspectRatio string `json:"aspect_ratio"`
}

type odysseyGenerateResponse struct {
	ID string `json:"id"`
}

type odysseyJobResponse struct {
	Status        string         `json:"status"`
	OutputURL     string         `json:"output_url,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	WorkflowSteps []WorkflowStep `json:"workflow_steps,omitempty"`
}

func NewOdysseyClient(cfg Config, events *EventLog, logger zerolog.Logger) *OdysseyClient {
	return &OdysseyClient{
		APIKey:         cfg.OdysseyAPIKey,
		DeveloperEmail: cfg.DeveloperEmail,
		BaseURL:        cfg.OdysseyBaseURL,
		GeneratePath:   cfg.GeneratePath,
		JobsPath:       cfg.JobsPath,
		PollInterval:   cfg.PollInterval,
		PollDeadline:   cfg.PollDeadline,
		HTTP:           &http.Client{Timeout: 60 * time.Second},
		Events:         events,
		Logger:         logger.With().Str("service", odysseyService).Logger(),
	}
}

func (c *OdysseyClient) Name() string { return odysseyService }

// Start creates a fresh generation job and waits for its output.
func (c *OdysseyClient) Start(ctx context.Context, prompt string) (GenerationResult, error) {
	return c.generate(ctx, prompt)
}

// Refine is a follow-up generation for an existing session. The service has
// no incremental-edit endpoint today, so refinement submits a new job; the
// session id is kept by the caller for correlation.
func (c *OdysseyClient) Refine(ctx context.Context, sessionID, prompt string) (GenerationResult, error) {
	c.Logger.Debug().Str("session_id", sessionID).Msg("refine collapses to a new job")
	return c.generate(ctx, prompt)
}

func (c *OdysseyClient) generate(ctx context.Context, prompt string) (GenerationResult, error) {
	if c.APIKey == "" {
		c.Events.Error(odysseyService, "not configured: missing API key", "", 0)
		return GenerationResult{}, fmt.Errorf("%s: %w", odysseyService, ErrMissingCredentials)
	}

	jobID, err := c.createJob(ctx, prompt)
	if err != nil {
		c.logFailure("create job failed: "+err.Error(), err)
		return GenerationResult{}, err
	}
	c.Events.Info(odysseyService, "generation job accepted: "+jobID)

	res, err := c.pollJob(ctx, jobID)
	if err != nil {
		c.logFailure("job "+jobID+" failed: "+err.Error(), err)
		return GenerationResult{}, err
	}
	c.Events.Info(odysseyService, "generation job completed: "+jobID)
	return res, nil
}

func (c *OdysseyClient) createJob(ctx context.Context, prompt string) (string, error) {
	url := c.BaseURL + "/" + c.GeneratePath
	body := odysseyGenerateRequest{Prompt: prompt, Duration: 4, AspectRatio: "16:9"}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.DeveloperEmail != "" {
		req.Header.Set("X-Developer-Email", c.DeveloperEmail)
	}

	raw, err := c.do(req)
	if err != nil {
		return "", err
	}
	var resp odysseyGenerateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", &DecodeError{Detail: err.Error()}
	}
	if resp.ID == "" {
		return "", &DecodeError{Detail: "generation response missing job id"}
	}
	return resp.ID, nil
}

// pollJob checks the job status at each poll interval until the job reports
// completed with an output URL. The wall-clock deadline bounds the loop; a
// stuck job surfaces as ErrTimeout instead of hanging the session forever.
func (c *OdysseyClient) pollJob(ctx context.Context, jobID string) (GenerationResult, error) {
	url := c.BaseURL + "/" + c.JobsPath + "/" + jobID
	deadline := time.Now().Add(c.PollDeadline)
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return GenerationResult{}, err
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)

		raw, err := c.do(req)
		if err != nil {
			return GenerationResult{}, err
		}
		var job odysseyJobResponse
		if err := json.Unmarshal(raw, &job); err != nil {
			return GenerationResult{}, &DecodeError{Detail: err.Error()}
		}
		c.Logger.Debug().Int("attempt", attempt).Str("status", job.Status).Msg("poll")

		if job.Status == "completed" && job.OutputURL != "" {
			return GenerationResult{
				VideoURL:      job.OutputURL,
				WorkflowSteps: job.WorkflowSteps,
				SessionID:     job.SessionID,
			}, nil
		}

		if time.Now().After(deadline) {
			return GenerationResult{}, fmt.Errorf("job %s still %q after %s: %w", jobID, job.Status, c.PollDeadline, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return GenerationResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *OdysseyClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(raw), URL: req.URL.String()}
	}
	return raw, nil
}

func (c *OdysseyClient) logFailure(message string, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		c.Events.Error(odysseyService, message, httpErr.URL, httpErr.Status)
		return
	}
	c.Events.Error(odysseyService, message, "", 0)
}
