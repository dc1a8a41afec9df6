package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/prospector/internal/planner"
	"github.com/ppiankov/prospector/internal/search"
)

var planJSON bool

// planCmd prints the search plan without calling any API
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the search tasks a run would execute",
	Long: `Expand keywords, regions and cities into the ordered task list and print the
query sent for each task. No network requests are made.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := LoadConfig(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		tasks, err := planner.Plan(cfg)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if planJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		}

		for _, t := range tasks {
			fmt.Fprintf(out, "%4d  %s\n", t.Index, search.BuildQuery(t, cfg.Search.QuerySuffix))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\n%d tasks (sample mode: %v)\n", len(tasks), cfg.SampleMode)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print tasks as JSON")
}
