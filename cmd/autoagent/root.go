package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jingkaihe/autonomous-agent/pkg/kernel"
	"github.com/jingkaihe/autonomous-agent/pkg/logger"
	"github.com/jingkaihe/autonomous-agent/pkg/paths"
	"github.com/jingkaihe/autonomous-agent/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName = "agent"
	envPrefix  = "AUTOAGENT"
)

// app carries the per-invocation state shared by all commands. The kernel is
// built lazily so commands such as version never touch the project tree.
type app struct {
	config  *AppConfig
	kernel  *kernel.Kernel
	logFile io.Closer
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.autoagent")
	viper.AddConfigPath(".")

	defaults := NewAppConfig()
	viper.SetDefault("root", defaults.Root)
	viper.SetDefault("log_level", defaults.LogLevel)
	viper.SetDefault("log_format", defaults.LogFormat)
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("closed_loop.max_iterations", defaults.ClosedLoop.MaxIterations)
	viper.SetDefault("monitor.debounce_ms", defaults.Monitor.DebounceMS)
}

func newRootCmd(a *app) *cobra.Command {
	initConfig()

	rootCmd := &cobra.Command{
		Use:   "autoagent",
		Short: "State kernel for autonomous task execution",
		Long: `autoagent keeps the state of an autonomous task-execution loop under the
project's runtime directory: execution tracking, error memory, closed-loop
phases, token usage, the skill registry and the agent registry.

The project root is the nearest ancestor holding a .trae directory. Use --root
or AUTOAGENT_ROOT to pin it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("root", "", "Project root (skips root resolution)")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flags.String("log-format", "", "Log format (text or json)")
	flags.String("store", "", "Store backend (json or sqlite)")
	flags.Bool("json", false, "Print machine-readable JSON")

	viper.BindPFlag("root", flags.Lookup("root"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("store.backend", flags.Lookup("store"))

	rootCmd.AddCommand(
		newInitCmd(a),
		newPathsCmd(a),
		newListSkillsCmd(a),
		newRepairCmd(a),
		newAgentsCmd(a),
		newMonitorCmd(a),
		newIntegrateCmd(a),
		newDBCmd(a),
		newConfigCmd(a),
		newSchemaCmd(),
		newVersionCmd(),
	)
	rootCmd.AddCommand(newTrackerCmds(a)...)
	rootCmd.AddCommand(newReflexionCmds(a)...)
	rootCmd.AddCommand(newUsageCmds(a)...)
	rootCmd.AddCommand(newClosedLoopCmds(a)...)

	return rootCmd
}

// setup reads the user-level configuration and configures logging
func (a *app) setup() error {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "failed to read config file")
		}
	}
	return a.reload()
}

func (a *app) reload() error {
	config, err := loadAppConfig()
	if err != nil {
		return err
	}
	a.config = config

	return logger.Setup(logger.Options{
		Level:  config.LogLevel,
		Format: config.LogFormat,
	})
}

// Kernel resolves the project root and builds the kernel on first use. A
// config file inside the runtime config directory is merged over the user
// configuration before the components are built; its root key is ignored.
func (a *app) Kernel(ctx context.Context) (*kernel.Kernel, error) {
	if a.kernel != nil {
		return a.kernel, nil
	}

	resolution := kernel.Resolve(ctx, a.config.Root)
	layout := paths.NewLayout(resolution.Root)

	projectConfig := filepath.Join(layout.ConfigDir(), configName+".yaml")
	if _, err := os.Stat(projectConfig); err == nil {
		viper.SetConfigFile(projectConfig)
		if err := viper.MergeInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", projectConfig)
		}
		// the root is already resolved; a project file cannot move it
		viper.Set("root", a.config.Root)
		if err := a.reload(); err != nil {
			return nil, err
		}
	}

	if info, err := os.Stat(layout.LogsDir()); err == nil && info.IsDir() {
		if f, err := logger.AttachLogFile(layout.LogsDir()); err == nil {
			a.logFile = f
		}
	}

	k, err := kernel.NewWithLayout(ctx, kernel.Config{
		Root:          a.config.Root,
		StoreBackend:  a.config.Store.Backend,
		MaxIterations: a.config.ClosedLoop.MaxIterations,
		Debounce:      time.Duration(a.config.Monitor.DebounceMS) * time.Millisecond,
	}, resolution, layout)
	if err != nil {
		return nil, err
	}
	a.kernel = k
	return k, nil
}

func (a *app) close() {
	if a.kernel != nil {
		if err := a.kernel.Close(); err != nil {
			logger.L.WithError(err).Warn("failed to close store")
		}
		a.kernel = nil
	}
	if a.logFile != nil {
		logger.L.Logger.SetOutput(os.Stderr)
		a.logFile.Close()
		a.logFile = nil
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// render prints v as JSON when --json is set, otherwise calls human
func render(cmd *cobra.Command, v any, human func()) error {
	if jsonOutput(cmd) {
		return presenter.JSON(v)
	}
	human()
	return nil
}
