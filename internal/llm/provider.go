package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/prospector/internal/extract"
	"github.com/ppiankov/prospector/internal/model"
)

// maxNameRunes bounds names accepted from a model
const maxNameRunes = 120

// Resolver turns page hints into a clean business name
type Resolver interface {
	extract.NameResolver

	// Name returns the provider name
	Name() string
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", "" (disabled)
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for one API request
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	// Transport carries proxy settings; nil uses the default transport
	Transport http.RoundTripper
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(cfg model.LLMConfig, transport http.RoundTripper) Config {
	return Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Timeout:   model.Seconds(cfg.Timeout),
		MaxTokens: 40,
		Transport: transport,
	}
}

const systemPrompt = "You extract the trading name of a Spanish business from web page signals. " +
	"Answer with the name only, no quotes, no explanation. " +
	"If the signals do not identify a business, answer UNKNOWN."

// BuildPrompt renders page hints for the model
func BuildPrompt(h extract.NameHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", h.URL)
	if h.SiteName != "" {
		fmt.Fprintf(&b, "og:site_name: %s\n", h.SiteName)
	}
	if h.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", h.Title)
	}
	if h.Heading != "" {
		fmt.Fprintf(&b, "First heading: %s\n", h.Heading)
	}
	if h.Heuristic != "" {
		fmt.Fprintf(&b, "Current guess: %s\n", h.Heuristic)
	}
	b.WriteString("\nWhat is the business name?")
	return b.String()
}

// cleanAnswer keeps the first line of a model answer and rejects non-answers
func cleanAnswer(answer string) string {
	answer = strings.TrimSpace(answer)
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	answer = strings.Trim(answer, " \t\"'`*")
	switch strings.TrimSuffix(strings.ToLower(answer), ".") {
	case "", "unknown", "desconocido", "n/a", "none":
		return ""
	}
	if utf8.RuneCountInString(answer) > maxNameRunes {
		return ""
	}
	return answer
}

// resolveWith runs a completion call under the configured timeout and cleans the answer
func resolveWith(ctx context.Context, timeout time.Duration, call func(context.Context) (string, error)) (string, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	answer, err := call(ctx)
	if err != nil {
		return "", err
	}
	return cleanAnswer(answer), nil
}
