// Package providers defines the Provider interface and the shared data types
// used by the upstream LLM integrations (OpenRouter and Google Gemini).
//
// A Provider answers a chat request either in one piece (Complete) or as a
// stream of text deltas (Stream). Streams are pull-based: callers Recv until
// io.EOF and must Close the stream to release the upstream connection.
package providers

import (
	"context"
	"fmt"
)

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"

	// SSEDone is the sentinel value that marks the end of an OpenAI-style
	// server-sent event stream.
	SSEDone = "[DONE]"
)

// Provider is implemented by every upstream LLM backend.
type Provider interface {
	Name() string
	// Models lists the model ids this provider serves.
	Models() []ModelInfo
	Complete(ctx context.Context, req Request) (*Response, error)
	// Stream opens a streaming completion. A non-200 answer is reported as a
	// *StatusError before any delta is produced.
	Stream(ctx context.Context, req Request) (ChatStream, error)
}

// ChatStream yields text deltas from an open upstream stream.
//
// Recv returns io.EOF once the upstream signalled a clean end of stream and
// io.ErrUnexpectedEOF when the connection ended without that signal.
type ChatStream interface {
	Recv() (Delta, error)
	Close() error
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete (non-streaming) answer.
type Response struct {
	ID           string `json:"id,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// Delta is one increment of a streamed answer. Content may be empty when the
// upstream event only carried usage or a finish reason.
type Delta struct {
	Content      string
	Usage        *Usage
	FinishReason string
}

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	Priority  int    `json:"priority"`
	Streaming bool   `json:"streaming"`
}

// StatusError is returned when an upstream answers with a non-200 status.
// It is never retried.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// Float returns a pointer to v, for optional Request fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional Request fields.
func Int(v int) *int { return &v }
