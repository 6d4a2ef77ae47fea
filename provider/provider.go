package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

// DisplayName is the human-readable vendor name used in client-facing errors.
func (c Client) DisplayName() string {
	switch c {
	case OpenAI:
		return "OpenAI"
	case Anthropic:
		return "Anthropic"
	case Gemini:
		return "Gemini"
	default:
		return string(c)
	}
}

var (
	ErrEmptyPrompt    = errors.New("provider: prompt is empty")
	ErrUnauthorized   = errors.New("provider: credential rejected")
	ErrProviderFailed = errors.New("provider: upstream error")
)

// Result is the text the model produced plus the tokens it reported.
type Result struct {
	Text       string
	TokensUsed int
}

// Generator is the interface that all LLM implementations must satisfy
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Result, error)
}

// Options carries the settings shared by every backend.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// StatusError classifies an upstream HTTP status into the provider error taxonomy.
func StatusError(status int, detail string) error {
	switch status {
	case 401, 403:
		return fmt.Errorf("%w: status %d: %s", ErrUnauthorized, status, detail)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrProviderFailed, status, detail)
	}
}
