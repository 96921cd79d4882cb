// Package llmclient talks to the embedding/chat backend used for
// semantic search and ProjectState generation. Two providers are
// supported: an Ollama-compatible HTTP server (the default, local-only
// path) and Gemini via google.golang.org/genai.
package llmclient

import (
	"context"

	"github.com/ternarybob/memorybank/internal/config"
	"github.com/ternarybob/memorybank/internal/storage"
)

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	Temperature float64
	Seed        int
	TopK        int
	JSONMode    bool
}

// Client is the narrow embed+chat surface the rest of the module
// depends on. internal/index.Embedder is satisfied by Embed alone.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (string, error)
	Available(ctx context.Context) error
}

// NewFromConfig selects and constructs a Client per cfg.LLM.Provider.
func NewFromConfig(cfg *config.Config) (Client, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg.Ollama, cfg.LLM), nil
	case "gemini":
		return NewGeminiClient(ctxBackground(), cfg.LLM)
	default:
		return nil, storage.NewUserError("unknown llm provider %q (expected ollama or gemini)", cfg.LLM.Provider)
	}
}

func ctxBackground() context.Context { return context.Background() }

// notRunning, modelNotFound, and timeout build the three spec-mandated
// ServiceUnavailable remediations for an unreachable embed/chat backend.
func notRunning(provider string) error {
	return storage.NewServiceUnavailable("%s is not running; start it and retry", provider)
}

func modelNotFound(provider, model string) error {
	return storage.NewServiceUnavailable("%s model %q not found; pull it and retry", provider, model)
}

func timeout(provider string) error {
	return storage.NewServiceUnavailable("%s request timed out", provider)
}
