package app

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatProvider selects which chat backend handles a send.
type ChatProvider string

const (
	ProviderCloud ChatProvider = "cloud"
	ProviderLocal ChatProvider = "local"
)

// ChatMessage is one immutable transcript turn. ID exists for UI diffing and
// is never reused.
type ChatMessage struct {
	ID        string
	Role      Role
	Text      string
	ImagePNG  []byte
	CreatedAt time.Time
}

func NewChatMessage(role Role, text string, imagePNG []byte) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		ImagePNG:  imagePNG,
		CreatedAt: time.Now(),
	}
}

// WorkflowStep is a server-suggested follow-up action shown after a
// successful generation. Not persisted across runs.
type WorkflowStep struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Detail       string `json:"detail"`
	ActionPrompt string `json:"action_prompt,omitempty"`
}

// Prompt derives the follow-up prompt a step stands for: the explicit action
// prompt when the server supplied one, the title otherwise.
func (s WorkflowStep) Prompt() string {
	if s.ActionPrompt != "" {
		return s.ActionPrompt
	}
	return s.Title
}

// GenerationResult is the uniform shape returned by both Start and Refine.
type GenerationResult struct {
	VideoURL      string
	WorkflowSteps []WorkflowStep
	SessionID     string
}

// Session is the orchestrator's single mutable record of generation and chat
// state. Presentation code never sees it directly, only Snapshot copies.
type Session struct {
	CurrentPrompt string
	Processing    bool
	VideoURL      string
	WorkflowSteps []WorkflowStep
	SessionID     string
	StatusText    string
	Transcript    []ChatMessage
	ChatProvider  ChatProvider
}

// Snapshot is a deep copy of Session handed to the presentation layer.
// Mutating a snapshot has no effect on the orchestrator.
type Snapshot = Session

func (s *Session) clone() Snapshot {
	out := *s
	out.WorkflowSteps = append([]WorkflowStep(nil), s.WorkflowSteps...)
	out.Transcript = append([]ChatMessage(nil), s.Transcript...)
	for i := range out.Transcript {
		if img := out.Transcript[i].ImagePNG; len(img) > 0 {
			out.Transcript[i].ImagePNG = append([]byte(nil), img...)
		}
	}
	return out
}
