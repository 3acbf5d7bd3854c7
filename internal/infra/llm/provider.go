// Package llm provides the language-model client used to draft patch
// suggestions for confirmed vulnerabilities.
package llm

import (
	"context"
	"errors"
)

// Provider is the interface for completion backends.
type Provider interface {
	// Complete sends a prompt and returns the completion.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name for logging.
	Name() string

	// Model returns the model being used.
	Model() string
}

// CompletionRequest represents a request to the model.
type CompletionRequest struct {
	// SystemPrompt is the system/instruction prompt.
	SystemPrompt string

	// UserPrompt is the user's input prompt.
	UserPrompt string

	// MaxTokens is the maximum tokens in the response.
	MaxTokens int

	// Temperature controls randomness (0.0-1.0).
	Temperature float64
}

// CompletionResponse represents a model response.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens in the response.
	CompletionTokens int

	// Model is the actual model used.
	Model string

	// StopReason indicates why the response ended.
	StopReason string
}

var (
	ErrProviderNotConfigured = errors.New("llm provider not configured")
	ErrRateLimited           = errors.New("llm rate limited")
	ErrInvalidResponse       = errors.New("invalid llm response")
)
