package main

import (
	"fmt"

	"github.com/jingkaihe/autonomous-agent/pkg/closedloop"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/jingkaihe/autonomous-agent/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// StoreConfig selects the document store backend
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" json:"backend"`
}

// ClosedLoopConfig bounds the closed-loop fix rounds
type ClosedLoopConfig struct {
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
}

// MonitorConfig holds the defaults of the monitor command
type MonitorConfig struct {
	DebounceMS int `mapstructure:"debounce_ms" yaml:"debounce_ms" json:"debounce_ms"`
}

// AppConfig is the effective configuration, merged from defaults, config
// files, AUTOAGENT_* environment variables and flags.
type AppConfig struct {
	Root       string           `mapstructure:"root" yaml:"root" json:"root"`
	LogLevel   string           `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat  string           `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store" json:"store"`
	ClosedLoop ClosedLoopConfig `mapstructure:"closed_loop" yaml:"closed_loop" json:"closed_loop"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor" json:"monitor"`
}

// NewAppConfig creates an AppConfig with default values
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Root:       "",
		LogLevel:   "warn",
		LogFormat:  "text",
		Store:      StoreConfig{Backend: store.BackendJSON},
		ClosedLoop: ClosedLoopConfig{MaxIterations: closedloop.DefaultMaxIterations},
		Monitor:    MonitorConfig{DebounceMS: 500},
	}
}

// Validate validates the AppConfig and returns an error if invalid
func (c *AppConfig) Validate() error {
	switch c.Store.Backend {
	case "", store.BackendJSON, store.BackendSQLite:
	default:
		return errors.Errorf("invalid store backend: %s, must be one of: %s, %s", c.Store.Backend, store.BackendJSON, store.BackendSQLite)
	}
	switch c.LogFormat {
	case "", "text", "fmt", "json":
	default:
		return errors.Errorf("invalid log format: %s, must be text or json", c.LogFormat)
	}
	if c.ClosedLoop.MaxIterations < 0 {
		return errors.Errorf("closed_loop.max_iterations cannot be negative: %d", c.ClosedLoop.MaxIterations)
	}
	if c.Monitor.DebounceMS < 0 {
		return errors.Errorf("monitor.debounce_ms cannot be negative: %d", c.Monitor.DebounceMS)
	}
	return nil
}

func loadAppConfig() (*AppConfig, error) {
	config := NewAppConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the effective configuration as YAML after merging defaults, the agent.yaml
files ($HOME/.autoagent, the working directory, then the runtime config
directory), AUTOAGENT_* environment variables and flags.

The runtime config directory lives under the project root, so a root key in
that file is ignored; set the root with --root, AUTOAGENT_ROOT or the user file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := a.Kernel(cmd.Context()); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return presenter.JSON(a.config)
			}

			out, err := yaml.Marshal(a.config)
			if err != nil {
				return errors.Wrap(err, "failed to marshal configuration")
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
