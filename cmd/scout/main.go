package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/reposcout/cmd/scout/commands"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "scout - find repositories that fit a request and your hardware",
	Long: `scout - repository discovery pipeline.

scout turns a free-text request into a ranked shortlist of repositories:
search, retrieval and rerank, a threshold filter, dependency checks against
your hardware, maintenance activity and optional sandboxed code-quality
analysis.

Available commands:
  run   - Run the pipeline for one request
  runs  - List and inspect recorded runs
  tool  - Sandboxed quality tool (worker and one-off analysis)
  am    - Show and validate configuration ("I am")

Examples:
  scout run "fast whisper transcription server for an RTX 3060"
  scout run --json "rust web framework with websockets"
  scout runs ls
  scout am show --format json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON on stderr")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: am.toml cascade)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.ToolCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		logger.Cleanup()
		os.Exit(1)
	}
}
