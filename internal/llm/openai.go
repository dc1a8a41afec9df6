package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/prospector/internal/extract"
)

// OpenAIResolver resolves business names with OpenAI chat models
type OpenAIResolver struct {
	client *openai.Client
	config Config
}

// NewOpenAIResolver creates a new OpenAI resolver
func NewOpenAIResolver(config Config) (*OpenAIResolver, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Transport != nil {
		clientConfig.HTTPClient = &http.Client{Transport: config.Transport}
	}

	return &OpenAIResolver{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIResolver) Name() string {
	return "openai"
}

// ResolveName asks the model for the business name behind the hints.
// An empty result means the model could not identify one.
func (p *OpenAIResolver) ResolveName(ctx context.Context, hints extract.NameHints) (string, error) {
	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 40
	}

	return resolveWith(ctx, p.config.Timeout, func(ctx context.Context) (string, error) {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(hints)},
			},
			MaxTokens:   maxTokens,
			Temperature: 0,
		})
		if err != nil {
			return "", fmt.Errorf("OpenAI API error: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no response from OpenAI")
		}
		return resp.Choices[0].Message.Content, nil
	})
}
