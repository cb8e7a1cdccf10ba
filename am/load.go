package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/reposcout/errors"
)

// ProjectConfigName is the file searched for from the working directory upwards.
const ProjectConfigName = "am.toml"

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the reposcout configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads and validates configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.WithHint(err, "check am.toml or the SCOUT_* environment variables")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path, on top of defaults
func LoadFromFile(configPath string) (*Config, error) {
	v, err := FileViper(configPath)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// FileViper reads configPath over the defaults. Environment variables are
// not bound for explicit file loads.
func FileViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	return v, nil
}

// Default returns the built-in configuration without reading files or environment.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var config Config
	// Defaults always decode; a failure here is a programming error in SetDefaults.
	if err := v.Unmarshal(&config); err != nil {
		panic(err)
	}
	return &config
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("SCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	// system -> user -> project; env vars still win through AutomaticEnv
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// FindProjectConfig searches for am.toml by walking up the directory tree.
// Returns the path to the first config file found, or empty string if none found.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// configPaths lists config files in precedence order (lowest first).
func configPaths() []string {
	paths := []string{"/etc/scout/am.toml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".scout", "am.toml"))
	}
	if project := FindProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// mergeConfigFiles merges configuration files in precedence order.
// Unreadable or malformed files are skipped; defaults still apply.
func mergeConfigFiles(v *viper.Viper) {
	for _, configPath := range configPaths() {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		_ = v.MergeInConfig()
	}
}
