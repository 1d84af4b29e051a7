// Package config loads CLI/SDK settings from file, environment, and flags
// using viper, mirroring the platform environment variables where they exist.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jina-ai/hubble-go/pkg/api"
	"github.com/jina-ai/hubble-go/pkg/keystore"
)

// Config holds the settings the CLI and SDK share.
type Config struct {
	// Registry is the platform base URL. Empty means the production default.
	Registry string `mapstructure:"registry"`
	// ConfigRoot is the directory holding the local keystore file.
	ConfigRoot string `mapstructure:"config_root"`
	// TimeoutSeconds bounds individual RPC calls. The authorize stream is
	// exempt since it is a deliberate long poll.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// CallbackPort is the fixed local port for the callback login transport.
	CallbackPort int `mapstructure:"callback_port"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// InitViper initializes viper with the hubble defaults and JINA env bindings.
func InitViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("hubble")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.jina")

	v.SetEnvPrefix("JINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registry", "")
	v.SetDefault("config_root", "")
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("callback_port", 8085)
	v.SetDefault("log_level", "info")
}

// Load reads the configuration from file and environment into cfg. A missing
// config file is not an error; the platform env overrides win last.
func Load(v *viper.Viper, cfg *Config) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The dedicated platform env vars take precedence over file values.
	if registry := os.Getenv(api.RegistryEnv); registry != "" {
		cfg.Registry = registry
	}
	if root := os.Getenv(keystore.ConfigRootEnv); root != "" {
		cfg.ConfigRoot = root
	}
	return nil
}

// BindFlags binds common CLI flags to viper.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().String("registry", "", "Platform base URL override")
	cmd.PersistentFlags().String("config-root", "", "Directory for the local credential store")
	cmd.PersistentFlags().Int("timeout", 30, "RPC timeout in seconds")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	v.BindPFlag("registry", cmd.PersistentFlags().Lookup("registry"))
	v.BindPFlag("config_root", cmd.PersistentFlags().Lookup("config-root"))
	v.BindPFlag("timeout_seconds", cmd.PersistentFlags().Lookup("timeout"))
	v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
}
