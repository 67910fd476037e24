// Package llm provides reply-generation functionality.
package llm

import (
	"context"
)

// Provider is the interface for text generation services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Generate produces a reply to prompt. history carries prior exchanges
	// of the same conversation, oldest first; implementations that only
	// support single-turn context may ignore it.
	Generate(ctx context.Context, prompt string, history []Exchange, opts GenerateOptions) (string, error)
}

// Exchange is one completed turn of a conversation.
type Exchange struct {
	User      string
	Assistant string
}

// GenerateOptions configures generation.
type GenerateOptions struct {
	Model           string // Provider-specific model identifier
	MaxOutputTokens int32  // Reply length budget; 0 means provider default
	SystemPrompt    string // Optional system instruction
}
