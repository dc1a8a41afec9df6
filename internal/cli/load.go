package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/prospector/internal/model"
)

const appName = "prospector"

// Secrets commonly exported under their vendor names
var envAliases = map[string][]string{
	"search.api_key":   {"PROSPECTOR_SEARCH_API_KEY", "GOOGLE_API_KEY"},
	"search.engine_id": {"PROSPECTOR_SEARCH_ENGINE_ID", "GOOGLE_CSE_ID"},
	"llm.api_key":      {"PROSPECTOR_LLM_API_KEY", "OPENAI_API_KEY"},
	"llm.base_url":     {"PROSPECTOR_LLM_BASE_URL", "OLLAMA_BASE_URL"},
}

// Flag name to config key
var flagKeys = map[string]string{
	"verbose":   "output.verbose",
	"json-logs": "output.json_logs",
	"sample":    "sample_mode",
	"workers":   "extraction.workers",
	"results":   "search.results_per_search",
	"output":    "persist.output_dir",
	"formats":   "persist.formats",
	"dedup":     "dedup.backend",
	"headless":  "render.headless",
	"summary":   "output.summary_markdown",
}

// DefaultConfigPath returns the XDG location of the config file
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// findConfigFile returns explicit when set, else the first existing default location
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, p := range []string{"config.yaml", DefaultConfigPath()} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadConfig merges defaults, the config file, the environment and changed
// flags, in increasing priority. It returns the file used, if any.
func LoadConfig(explicit string, flags *pflag.FlagSet) (*model.Config, string, error) {
	// A missing .env is the normal case
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return nil, "", fmt.Errorf("marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, "", fmt.Errorf("load defaults: %w", err)
	}

	path := findConfigFile(explicit)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
				return nil, "", fmt.Errorf("%w: config file %s not found", model.ErrConfiguration, path)
			}
			return nil, "", fmt.Errorf("%w: read %s: %v", model.ErrConfiguration, path, err)
		}
	}

	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, "", err
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", err
				}
			}
		}
	}

	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	return cfg, path, nil
}
