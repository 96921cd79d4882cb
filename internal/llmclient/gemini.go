package llmclient

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/ternarybob/memorybank/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements Client against Gemini via google.golang.org/genai,
// for deployments that prefer a hosted model over a local Ollama server.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds a Gemini-backed Client from config.
func NewGeminiClient(ctx context.Context, llm config.LLMConfig) (*GeminiClient, error) {
	if llm.GeminiAPIKey == "" {
		return nil, fmt.Errorf("llm.gemini_api_key is required when llm.provider is gemini")
	}
	model := llm.GeminiModel
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  llm.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

// Embed satisfies internal/index.Embedder via the Gemini embeddings API.
func (c *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		result, err := c.client.Models.EmbedContent(ctx, c.model, genai.Text(text), nil)
		if err != nil {
			return nil, fmt.Errorf("gemini: embed content: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("gemini: empty embedding response")
		}
		out[i] = result.Embeddings[0].Values
	}
	return out, nil
}

// Chat issues a single generation call, folding systemPrompt and
// userPrompt into one request per the genai SDK's content model.
func (c *GeminiClient) Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (string, error) {
	temp := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
	}
	if opts.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(userPrompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini: empty response")
	}

	var text string
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return text, nil
}

// Available probes the API by requesting the model's metadata.
func (c *GeminiClient) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.client.Models.Get(ctx, c.model, nil)
	if err != nil {
		return notRunning("gemini")
	}
	return nil
}
