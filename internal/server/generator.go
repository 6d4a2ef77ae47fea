package server

import (
	"fmt"

	"github.com/mohammad-safakhou/supportbot/config"
	"github.com/mohammad-safakhou/supportbot/provider"
	anthropic_provider "github.com/mohammad-safakhou/supportbot/provider/anthropic"
	"github.com/mohammad-safakhou/supportbot/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/supportbot/provider/openai"
)

// NewGenerator builds the model client selected by cfg.Provider.
func NewGenerator(cfg config.ModelConfig) (provider.Generator, provider.Client, error) {
	opts := provider.Options{
		APIKey:      cfg.APIKey,
		Model:       cfg.Name,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}
	switch client := provider.Client(cfg.Provider); client {
	case provider.Gemini, "":
		return gemini.New(opts), provider.Gemini, nil
	case provider.OpenAI:
		return openai_provider.New(opts), client, nil
	case provider.Anthropic:
		return anthropic_provider.New(opts), client, nil
	default:
		return nil, "", fmt.Errorf("unsupported model provider: %s", cfg.Provider)
	}
}
