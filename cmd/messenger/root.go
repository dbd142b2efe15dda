package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/goliatone/go-messenger/core"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	version           = "0.1.0"
	defaultConfigPath = "messenger.yaml"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "messenger",
		Short:         "Messenger webhook gateway and bot runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Path to the YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newConfigureCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	return cmd
}

// loadConfig reads the dotenv file, then layers defaults, the config file
// and MESSENGER_* environment overrides.
func (o *rootOptions) loadConfig(ctx context.Context) (core.Config, error) {
	if err := loadEnvFile(o.envFile); err != nil {
		return core.Config{}, err
	}
	var file core.RawConfigLoader
	if path := strings.TrimSpace(o.configPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			file = core.YAMLFileLoader{Path: path}
		} else if !errors.Is(err, fs.ErrNotExist) || path != defaultConfigPath {
			return core.Config{}, core.ConfigurationError(err, "config file not readable", map[string]any{"path": path})
		}
	}
	return core.LoadConfig(ctx, file, core.EnvLoader{})
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return core.ConfigurationError(err, "load env file", map[string]any{"path": path})
	}
	return nil
}
