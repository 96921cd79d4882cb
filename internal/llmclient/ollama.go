package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ternarybob/memorybank/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaClient talks to an Ollama-compatible embed/chat server per
// spec §6's wire format.
type OllamaClient struct {
	baseURL     string
	embedModel  string
	chatModel   string
	httpClient  *http.Client
	embedTimeout time.Duration
	chatTimeout  time.Duration
}

// NewOllamaClient builds a client from the project's ollama/llm config.
func NewOllamaClient(ollama config.OllamaConfig, llm config.LLMConfig) *OllamaClient {
	baseURL := ollama.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	embedTimeout := time.Duration(llm.EmbedTimeoutSeconds) * time.Second
	if embedTimeout <= 0 {
		embedTimeout = 120 * time.Second
	}
	chatTimeout := time.Duration(llm.ChatTimeoutSeconds) * time.Second
	if chatTimeout <= 0 {
		chatTimeout = 300 * time.Second
	}
	return &OllamaClient{
		baseURL:      baseURL,
		embedModel:   ollama.EmbedModel,
		chatModel:    ollama.ChatModel,
		httpClient:   &http.Client{},
		embedTimeout: embedTimeout,
		chatTimeout:  chatTimeout,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed satisfies internal/index.Embedder.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.embedModel, Input: texts})
	if err != nil {
		return nil, err
	}

	respBody, err := c.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("ollama: decode embed response: %w", err)
	}
	return resp.Embeddings, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	Seed        int     `json:"seed,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Chat issues a single non-streaming chat completion.
func (c *OllamaClient) Chat(ctx context.Context, systemPrompt, userPrompt string, opts ChatOptions) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.chatTimeout)
	defer cancel()

	req := chatRequest{
		Model: c.chatModel,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
		Options: chatOptions{
			Temperature: opts.Temperature,
			Seed:        opts.Seed,
			TopK:        opts.TopK,
		},
	}
	if opts.JSONMode {
		req.Format = "json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	respBody, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("ollama: decode chat response: %w", err)
	}
	return resp.Message.Content, nil
}

// Available probes GET /api/tags for liveness.
func (c *OllamaClient) Available(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.mapError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modelNotFound("ollama", c.embedModel)
	}
	return nil
}

func (c *OllamaClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return respBody, nil
	case http.StatusNotFound:
		return nil, modelNotFound("ollama", c.chatModel)
	default:
		return nil, fmt.Errorf("ollama: http %d: %s", resp.StatusCode, string(respBody))
	}
}

func (c *OllamaClient) mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeout("ollama")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeout("ollama")
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return notRunning("ollama")
	}
	return notRunning("ollama")
}
