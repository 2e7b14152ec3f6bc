package main

import (
	"os"

	"github.com/danmuck/rsensor/internal/config"
	"github.com/danmuck/rsensor/internal/logging"
	"github.com/danmuck/rsensor/internal/observability"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultConfigPath = "rsensor.toml"

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "rsensorctl",
		Short:         "Remote sensor protocol server and tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			applyLogging(logging.ProfileConfig(logging.ProfileRuntime), opts)
			observability.InitLogger("rsensorctl")
		},
	}
	bindGlobalFlags(root.PersistentFlags(), opts)

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(),
		newWatchCmd(),
		newConfigCmd(opts),
	)
	return root
}

func bindGlobalFlags(fs *pflag.FlagSet, opts *globalOptions) {
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to rsensor.toml (defaults apply when unset and ./rsensor.toml is absent)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level override: trace|debug|info|warn|error|off")
}

// loadConfig reads the configured file; without --config it falls back to
// ./rsensor.toml and then to built-in defaults.
func loadConfig(opts *globalOptions) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return config.Default(), nil
		}
		path = defaultConfigPath
	}
	return config.Load(path)
}

func applyLogging(cfg logging.Config, opts *globalOptions) {
	if lvl, ok := logging.ParseLevel(opts.logLevel); ok {
		cfg.Level = lvl
	}
	logging.Apply(cfg)
}
