package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// VideoClient is the generation backend contract.
type VideoClient interface {
	Start(ctx context.Context, prompt string) (GenerationResult, error)
	Refine(ctx context.Context, sessionID, prompt string) (GenerationResult, error)
	Name() string
}

// ChatClient is the uniform chat-provider contract. The transcript passed to
// Send already includes the newest user turn.
type ChatClient interface {
	Send(ctx context.Context, transcript []ChatMessage) (string, error)
	Name() string
	Configured() bool
}

// Orchestrator owns the single session and handles every intent the
// presentation layer can raise. Remote failures never escape it: they become
// status text or transcript turns plus event-log entries.
//
// Generation and refinement share a single in-flight slot enforced here, not
// just by the UI's Processing gate. Chat is an independent sub-system and may
// run concurrently with a generation; the mutex is held only for state
// batches, never across network calls.
type Orchestrator struct {
	video   VideoClient
	cloud   ChatClient
	local   ChatClient
	capture Capture
	events  *EventLog
	logger  zerolog.Logger

	mu         sync.Mutex
	generating bool
	sess       Session
}

func NewOrchestrator(video VideoClient, cloud, local ChatClient, capture Capture, events *EventLog, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		video:   video,
		cloud:   cloud,
		local:   local,
		capture: capture,
		events:  events,
		logger:  logger.With().Str("component", "orchestrator").Logger(),
	}
	// Credential probe happens exactly once, here. No later revalidation.
	if cloud.Configured() {
		o.sess.ChatProvider = ProviderCloud
	} else {
		o.sess.ChatProvider = ProviderLocal
	}
	return o
}

// Snapshot returns a deep copy of the current session state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess.clone()
}

func (o *Orchestrator) SetCurrentPrompt(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sess.CurrentPrompt = text
}

// SubmitPrompt starts a fresh generation. A top-level prompt never refines an
// existing session. Rejections (empty prompt, generation already in flight)
// leave observable state unchanged.
func (o *Orchestrator) SubmitPrompt(ctx context.Context, text string) error {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if err := o.acquireGenerationSlot(); err != nil {
		return err
	}

	res, err := o.video.Start(ctx, prompt)
	o.finishGeneration(res, err, false)
	return nil
}

// TapWorkflowStep runs the follow-up a step suggests. With an existing
// session id it refines; without one it falls back to a fresh start.
func (o *Orchestrator) TapWorkflowStep(ctx context.Context, step WorkflowStep) error {
	prompt := strings.TrimSpace(step.Prompt())
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if err := o.acquireGenerationSlot(); err != nil {
		return err
	}

	o.mu.Lock()
	sessionID := o.sess.SessionID
	o.mu.Unlock()

	var (
		res GenerationResult
		err error
	)
	if sessionID != "" {
		res, err = o.video.Refine(ctx, sessionID, prompt)
	} else {
		res, err = o.video.Start(ctx, prompt)
	}
	o.finishGeneration(res, err, true)
	return nil
}

// acquireGenerationSlot claims the single in-flight generation slot and
// publishes the processing state in one batch.
func (o *Orchestrator) acquireGenerationSlot() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.generating {
		return ErrGenerationInFlight
	}
	o.generating = true
	o.sess.Processing = true
	o.sess.StatusText = "Contacting " + o.video.Name() + "..."
	return nil
}

// finishGeneration applies the outcome of a generation or refinement as one
// atomic batch. A failure leaves the session id and any prior video reference
// untouched; a success never clears an existing session id.
func (o *Orchestrator) finishGeneration(res GenerationResult, err error, refinement bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generating = false
	o.sess.Processing = false

	if err != nil {
		o.sess.StatusText = fmt.Sprintf("%s error: %s", o.video.Name(), errText(err))
		o.logger.Error().Err(err).Bool("refinement", refinement).Msg("generation failed")
		return
	}

	o.sess.VideoURL = res.VideoURL
	o.sess.WorkflowSteps = res.WorkflowSteps
	if res.SessionID != "" {
		o.sess.SessionID = res.SessionID
	}
	o.sess.StatusText = ""
	o.logger.Info().Str("session_id", o.sess.SessionID).Bool("refinement", refinement).Msg("generation complete")
}

// SendChatMessage appends the user turn synchronously, then asks the active
// provider for a reply. Provider errors become assistant turns, never
// panics; a send always grows the transcript by exactly two messages.
func (o *Orchestrator) SendChatMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyPrompt
	}

	o.mu.Lock()
	o.sess.Transcript = append(o.sess.Transcript, NewChatMessage(RoleUser, trimmed, nil))
	client := o.activeChatClientLocked()
	transcript := append([]ChatMessage(nil), o.sess.Transcript...)
	o.mu.Unlock()

	reply, err := client.Send(ctx, transcript)
	if err != nil {
		reply = o.chatErrorText(client, err)
	}

	o.mu.Lock()
	o.sess.Transcript = append(o.sess.Transcript, NewChatMessage(RoleAssistant, reply, nil))
	o.mu.Unlock()
	return nil
}

// AddScreenshotMessage captures the screen and appends it as a user turn. A
// capture failure is reported immediately as an assistant turn; no network
// call is attempted.
func (o *Orchestrator) AddScreenshotMessage() error {
	img, err := o.capture.CapturePNG()

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.sess.Transcript = append(o.sess.Transcript, NewChatMessage(RoleAssistant, "Screenshot failed: "+errText(err), nil))
		o.events.Error("Capture", err.Error(), "", 0)
		return nil
	}
	o.sess.Transcript = append(o.sess.Transcript, NewChatMessage(RoleUser, "Screenshot", img))
	return nil
}

// SwitchChatProvider changes which backend handles future sends. Messages
// already in the transcript keep whatever provider produced them.
func (o *Orchestrator) SwitchChatProvider(p ChatProvider) error {
	if p != ProviderCloud && p != ProviderLocal {
		return fmt.Errorf("%w: unknown chat provider %q", ErrInvalidConfiguration, p)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sess.ChatProvider = p
	return nil
}

// ClearTranscript drops all chat history. Only the user triggers this.
func (o *Orchestrator) ClearTranscript() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sess.Transcript = nil
}

func (o *Orchestrator) activeChatClientLocked() ChatClient {
	if o.sess.ChatProvider == ProviderCloud {
		return o.cloud
	}
	return o.local
}

// chatErrorText turns a provider failure into an assistant-authored turn.
// The provider client has already mirrored the failure into the event log.
func (o *Orchestrator) chatErrorText(client ChatClient, err error) string {
	if errors.Is(err, ErrMissingCredentials) {
		return client.Name() + " is not configured. Add its API key to enable it."
	}
	o.logger.Error().Err(err).Str("provider", client.Name()).Msg("chat send failed")
	return client.Name() + " error: " + errText(err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
