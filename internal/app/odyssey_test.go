package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOdysseyConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.OdysseyAPIKey = "sk-test"
	cfg.DeveloperEmail = "dev@example.com"
	cfg.OdysseyBaseURL = baseURL
	cfg.PollInterval = 5 * time.Millisecond
	cfg.PollDeadline = time.Second
	return cfg
}

func TestOdysseyStart_PollsUntilCompleted(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "dev@example.com", r.Header.Get("X-Developer-Email"))

		var body odysseyGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a fox in the snow", body.Prompt)
		assert.Equal(t, 4, body.Duration)
		assert.Equal(t, "16:9", body.AspectRatio)

		json.NewEncoder(w).Encode(odysseyGenerateResponse{ID: "job-1"})
	})
	mux.HandleFunc("GET /jobs/job-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			json.NewEncoder(w).Encode(odysseyJobResponse{Status: "processing"})
			return
		}
		json.NewEncoder(w).Encode(odysseyJobResponse{
			Status:    "completed",
			OutputURL: "https://cdn/out.mp4",
			SessionID: "sess-9",
			WorkflowSteps: []WorkflowStep{
				{ID: "s1", Title: "Add a second fox", ActionPrompt: "add another fox"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewOdysseyClient(testOdysseyConfig(srv.URL), NewEventLog(10), zerolog.Nop())
	res, err := client.Start(context.Background(), "a fox in the snow")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/out.mp4", res.VideoURL)
	assert.Equal(t, "sess-9", res.SessionID)
	require.Len(t, res.WorkflowSteps, 1)
	assert.Equal(t, "add another fox", res.WorkflowSteps[0].Prompt())
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestOdysseyStart_MissingCredentials(t *testing.T) {
	cfg := testOdysseyConfig("http://127.0.0.1:0")
	cfg.OdysseyAPIKey = ""
	events := NewEventLog(10)
	client := NewOdysseyClient(cfg, events, zerolog.Nop())

	_, err := client.Start(context.Background(), "p")
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Len(t, events.Errors(), 1)
}

func TestOdysseyStart_HTTPErrorCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	events := NewEventLog(10)
	client := NewOdysseyClient(testOdysseyConfig(srv.URL), events, zerolog.Nop())

	_, err := client.Start(context.Background(), "p")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.Status)
	assert.Contains(t, httpErr.Body, "bad key")

	errs := events.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, http.StatusUnauthorized, errs[0].StatusCode)
	assert.Contains(t, errs[0].URL, "/generations")
}

func TestOdysseyStart_DecodeErrorIsNotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	client := NewOdysseyClient(testOdysseyConfig(srv.URL), NewEventLog(10), zerolog.Nop())
	_, err := client.Start(context.Background(), "p")

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestOdysseyStart_StuckJobTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(odysseyGenerateResponse{ID: "job-stuck"})
	})
	mux.HandleFunc("GET /jobs/job-stuck", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(odysseyJobResponse{Status: "processing"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testOdysseyConfig(srv.URL)
	cfg.PollDeadline = 30 * time.Millisecond
	client := NewOdysseyClient(cfg, NewEventLog(10), zerolog.Nop())

	_, err := client.Start(context.Background(), "p")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestOdysseyRefine_SubmitsNewJob(t *testing.T) {
	var creates atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /generations", func(w http.ResponseWriter, r *http.Request) {
		creates.Add(1)
		json.NewEncoder(w).Encode(odysseyGenerateResponse{ID: "job-2"})
	})
	mux.HandleFunc("GET /jobs/job-2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(odysseyJobResponse{Status: "completed", OutputURL: "https://cdn/2.mp4"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewOdysseyClient(testOdysseyConfig(srv.URL), NewEventLog(10), zerolog.Nop())
	res, err := client.Refine(context.Background(), "sess-1", "more foxes")
	require.NoError(t, err)

	assert.Equal(t, int32(1), creates.Load())
	assert.Equal(t, "https://cdn/2.mp4", res.VideoURL)
	// The service returns no session id here; keeping the old one is the
	// orchestrator's job.
	assert.Empty(t, res.SessionID)
}
