package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/sandbox"
	"github.com/teranos/reposcout/sandbox/toolrpc"
	"github.com/teranos/reposcout/version"
)

// ToolCmd groups the sandboxed quality tool commands.
var ToolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Sandboxed code-quality tool",
	Long: `The code-quality tool clones a repository into a throwaway workspace,
runs the static analyzer over it and scores the result.

During a run each analysis happens in a separate worker process speaking
MCP over stdio; "scout tool serve" is that worker.`,
}

var toolServeCmd = &cobra.Command{
	Use:    "serve",
	Short:  "Serve the quality tool over stdio (worker mode)",
	Args:   cobra.NoArgs,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		opts := []sandbox.RunnerOption{sandbox.WithLogger(logger.Logger.Named("sandbox"))}
		if root := toolrpc.WorkspaceRoot(); root != "" {
			opts = append(opts, sandbox.WithTempRoot(root))
		}
		runner, err := sandbox.NewRunner(cfg.Sandbox, opts...)
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()
		return toolrpc.ServeStdio(ctx, toolrpc.NewServer(runner, version.Short()), os.Stdin, os.Stdout)
	},
}

var toolAnalyzeCmd = &cobra.Command{
	Use:   "analyze <clone-url>",
	Short: "Analyze one repository and print the result",
	Long: `Analyze one repository and print the tool result as JSON.

By default the analysis goes through a worker process exactly as it does
during a run; --local runs it in this process instead.

Examples:
  scout tool analyze https://github.com/psf/requests.git
  scout tool analyze --local ./some/checkout`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		local, _ := cmd.Flags().GetBool("local")
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}

		var res sandbox.Result
		if local {
			runner, err := sandbox.NewRunner(cfg.Sandbox, sandbox.WithLogger(logger.Logger.Named("sandbox")))
			if err != nil {
				return err
			}
			res = runner.Analyze(cmd.Context(), args[0])
		} else {
			client, err := toolrpc.NewClient(cfg.Sandbox, toolrpc.WithLogger(logger.Logger.Named("toolrpc")))
			if err != nil {
				return err
			}
			res, err = client.Call(cmd.Context(), args[0])
			if err != nil {
				return err
			}
		}

		return writeJSON(cmd, res)
	},
}

func init() {
	toolAnalyzeCmd.Flags().Bool("local", false, "Analyze in this process instead of a worker")
	ToolCmd.AddCommand(toolServeCmd)
	ToolCmd.AddCommand(toolAnalyzeCmd)
}
