package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
)

// AmCmd groups the configuration commands.
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show and validate scout configuration",
	Long: `am - scout configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (SCOUT_* prefix; OPENROUTER_API_KEY, GITHUB_TOKEN)
2. Project config (./am.toml, searched upwards)
3. User config (~/.scout/am.toml)
4. System config (/etc/scout/am.toml)
5. Default values

--config replaces the cascade with a single file over the defaults.

Examples:
  scout am show                   # Show merged configuration
  scout am show --format json     # Same, as JSON
  scout am validate --watch       # Re-validate on every save`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long: `Validate the configuration. With --watch, keep watching the config file
and re-validate each time it is saved.`,
	Args: cobra.NoArgs,
	RunE: runAmValidate,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json, yaml")
	amValidateCmd.Flags().Bool("watch", false, "Re-validate whenever the config file changes")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}
	settings := am.SettingsForDisplay(v)

	var data []byte
	switch format {
	case "json":
		data, err = json.MarshalIndent(settings, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(settings)
	case "toml":
		data, err = toml.Marshal(settings)
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to marshal config to %s", format)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")

	if _, err := loadConfig(cmd); err != nil {
		pterm.Error.Printfln("Configuration invalid: %v", err)
		if !watch {
			return err
		}
	} else {
		pterm.Success.Println("Configuration valid")
	}
	if !watch {
		return nil
	}

	path := configPath(cmd)
	if path == "" {
		path = am.FindProjectConfig()
	}
	if path == "" {
		return errors.WithHint(
			errors.NewNotFoundError("no config file to watch"),
			"create ./am.toml or pass --config")
	}

	w, err := am.NewWatcher(path, 300*time.Millisecond, func(_ *am.Config, err error) {
		if err != nil {
			pterm.Error.Printfln("%s: %v", path, err)
			return
		}
		pterm.Success.Printfln("%s: valid", path)
	}, logger.Logger.Named("am"))
	if err != nil {
		return err
	}
	pterm.Info.Printfln("Watching %s (Ctrl+C to stop)", path)
	ctx, stop := signalContext(cmd)
	defer stop()
	return w.Run(ctx)
}
