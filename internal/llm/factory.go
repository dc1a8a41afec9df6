package llm

import (
	"fmt"
	"strings"
)

// NewResolver creates a name resolver based on configuration.
// An empty or "none" provider disables resolution and returns (nil, nil).
func NewResolver(config Config) (Resolver, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		r, err := NewOpenAIResolver(config)
		if err != nil {
			return nil, err
		}
		return r, nil

	case "ollama":
		r, err := NewOllamaResolver(config)
		if err != nil {
			return nil, err
		}
		return r, nil

	case "", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}
