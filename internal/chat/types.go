package chat

import (
	"errors"
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Defaults applied when neither the request nor the config sets a value.
const (
	DefaultModel       = "openai/gpt-4o-mini"
	DefaultTemperature = 0.6
	DefaultTopP        = 0.9
	DefaultTargetLang  = "id-ID"

	// MaxMessages bounds a single request's history.
	MaxMessages = 100
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("OpenRouter API key not configured")

	// ErrInvalidRequest wraps every request validation failure.
	ErrInvalidRequest = errors.New("invalid chat request")
)

// Message is one turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /api/chat.
type Request struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TargetLang  string    `json:"targetLang,omitempty"`
}

// Response is the success body of POST /api/chat.
type Response struct {
	Content string `json:"content"`
}

// ErrorResponse is the failure body of POST /api/chat.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UpstreamError is a non-200 reply from the completion API.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("OpenRouter error (HTTP %d)", e.Status)
	}
	return e.Body
}

// APIError is a non-200 reply from POST /api/chat as seen by Client.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat endpoint error (HTTP %d): %s", e.Status, e.Message)
}
