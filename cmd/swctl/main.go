package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// Config is the swctl profile stored in ~/.weatherdash/swctl.toml.
type Config struct {
	Proxy ConfigProxy `toml:"proxy"`
}

// ConfigProxy locates the running proxy.
type ConfigProxy struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

const defaultBaseURL = "http://localhost:8080"

// configPath returns the profile path: the --config flag, else ~/.weatherdash/swctl.toml.
func configPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".weatherdash", "swctl.toml"), nil
}

// loadConfig reads the profile. A missing file yields a zero Config.
func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a field using dot notation (e.g. "proxy.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. proxy.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "proxy":
		switch field {
		case "base_url":
			cfg.Proxy.BaseURL = value
		case "timeout":
			cfg.Proxy.Timeout = value
		default:
			return fmt.Errorf("unknown field %q in section [proxy]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: proxy)", section)
	}
	return nil
}

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	baseURL    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "swctl",
		Short:         "Control a running weatherdash offline proxy",
		Long:          "Send control messages, fire sync and push events and inspect the state of a weatherdash offline proxy.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "profile file (default ~/.weatherdash/swctl.toml)")
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "", "proxy base URL (overrides the profile)")

	root.AddCommand(
		newConfigCmd(opts),
		newMessageCmd(opts),
		newSyncCmd(opts),
		newPushCmd(opts),
		newClickCmd(opts),
		newStateCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
