package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/prospector/internal/logging"
	"github.com/ppiankov/prospector/internal/model"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Prospector configuration",
	Long: `Manage Prospector configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (PROSPECTOR_*, GOOGLE_API_KEY, GOOGLE_CSE_ID, OPENAI_API_KEY)
3. Config file (./config.yaml or ` + DefaultConfigPath() + `)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the merged configuration (defaults, config file, env vars, flags) with secrets masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		if path != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", path)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(maskSecrets(cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(yamlData)
		return err
	},
}

var forceInit bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long:  `Create a configuration file with every option set to its default (default path: ` + DefaultConfigPath() + `).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		configPath := DefaultConfigPath()
		if len(args) == 1 {
			configPath = args[0]
		}

		if _, statErr := os.Stat(configPath); statErr == nil && !forceInit {
			return fmt.Errorf("config file already exists: %s\nUse 'prospector config show' to view it, or --force to overwrite", configPath)
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		printf := func(format string, a ...interface{}) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		printf("# Prospector configuration\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Environment variables (PROSPECTOR_*, e.g. PROSPECTOR_SEARCH_RESULTS_PER_SEARCH)\n")
		printf("#   3. This config file\n")
		printf("#   4. Built-in defaults\n\n")

		yamlData, mErr := yaml.Marshal(model.DefaultConfig())
		if mErr != nil {
			return fmt.Errorf("error marshaling config: %w", mErr)
		}
		printf("%s", yamlData)

		printf("\n# Secrets are best kept in the environment or a .env file:\n")
		printf("#   GOOGLE_API_KEY=...\n")
		printf("#   GOOGLE_CSE_ID=...\n")
		printf("#   OPENAI_API_KEY=sk-...\n")
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created default configuration: %s\n", configPath)
		return nil
	},
}

// maskSecrets returns a copy of cfg safe to print
func maskSecrets(cfg *model.Config) *model.Config {
	c := *cfg
	if c.Search.APIKey != "" {
		c.Search.APIKey = logging.MaskValue
	}
	if c.Search.EngineID != "" {
		c.Search.EngineID = logging.MaskValue
	}
	if c.LLM.APIKey != "" {
		c.LLM.APIKey = logging.MaskValue
	}
	c.Dedup.RedisAddr = logging.Redact(c.Dedup.RedisAddr)
	c.HTTP.HTTPProxy = logging.Redact(c.HTTP.HTTPProxy)
	c.HTTP.HTTPSProxy = logging.Redact(c.HTTP.HTTPSProxy)
	return &c
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}
