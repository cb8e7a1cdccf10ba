package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teranos/reposcout/am"
)

// loadConfig honours --config, falling back to the am.toml cascade. An
// explicit file is forwarded to re-executed tool workers so they see the
// same sandbox settings.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	path := configPath(cmd)
	if path == "" {
		return am.Load()
	}
	cfg, err := am.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.Sandbox.WorkerCommand == "" {
		cfg.Sandbox.WorkerArgs += " " + shellquote.Join("--config", path)
	}
	return cfg, nil
}

func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	if path := configPath(cmd); path != "" {
		return am.FileViper(path)
	}
	return am.GetViper(), nil
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
