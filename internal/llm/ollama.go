package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/prospector/internal/extract"
)

// OllamaResolver resolves business names with a local Ollama model
type OllamaResolver struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Ollama API structures
type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaResolver creates a new Ollama resolver
func NewOllamaResolver(config Config) (*OllamaResolver, error) {
	if config.Model == "" {
		return nil, errors.New("ollama model must be specified (e.g., llama3.1:8b, mistral)")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaResolver{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Transport: config.Transport},
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaResolver) Name() string {
	return "ollama"
}

// ResolveName asks the local model for the business name behind the hints
func (p *OllamaResolver) ResolveName(ctx context.Context, hints extract.NameHints) (string, error) {
	apiReq := ollamaRequest{
		Model:  p.config.Model,
		Prompt: BuildPrompt(hints),
		Stream: false,
		System: systemPrompt,
		Options: ollamaOptions{
			NumPredict: p.config.MaxTokens,
		},
	}

	return resolveWith(ctx, p.config.Timeout, func(ctx context.Context) (string, error) {
		resp, err := p.makeRequest(ctx, apiReq)
		if err != nil {
			return "", fmt.Errorf("ollama API error: %w", err)
		}
		return resp.Response, nil
	})
}

// makeRequest makes an HTTP request to the Ollama API
func (p *OllamaResolver) makeRequest(ctx context.Context, apiReq ollamaRequest) (*ollamaResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp ollamaResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
