package loadtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/informalsystems/wsproxy-load-test/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
)

// CLIConfig allows developers to customize their own load testing tool.
type CLIConfig struct {
	AppName      string
	AppShortDesc string
	AppLongDesc  string
}

var (
	flagVerbose    bool
	flagConfigFile string
)

// Applied, in order, for every flag explicitly given on the command line so
// that those take precedence over values from a configuration file.
var flagOverrides = map[string]func(dst, src *Config){
	"levels":          func(dst, src *Config) { dst.Levels = src.Levels },
	"window":          func(dst, src *Config) { dst.Window = src.Window },
	"cool-down":       func(dst, src *Config) { dst.CoolDown = src.CoolDown },
	"connect-timeout": func(dst, src *Config) { dst.ConnectTimeout = src.ConnectTimeout },
	"close-timeout":   func(dst, src *Config) { dst.CloseTimeout = src.CloseTimeout },
	"write-timeout":   func(dst, src *Config) { dst.WriteTimeout = src.WriteTimeout },
	"level-timeout":   func(dst, src *Config) { dst.LevelTimeout = src.LevelTimeout },
	"proxy":           func(dst, src *Config) { dst.ProxyURL = src.ProxyURL },
	"target":          func(dst, src *Config) { dst.TargetURI = src.TargetURI },
	"output":          func(dst, src *Config) { dst.Output = src.Output },
	"stats-output":    func(dst, src *Config) { dst.StatsOutput = src.StatsOutput },
	"metrics-addr":    func(dst, src *Config) { dst.MetricsAddr = src.MetricsAddr },
	"log-file":        func(dst, src *Config) { dst.LogFile = src.LogFile },
}

func buildCLI(cli *CLIConfig, logger logging.Logger, stdout io.Writer) *cobra.Command {
	cobra.OnInitialize(func() { initLogLevel(logger) })
	flagCfg := DefaultConfig()
	rootCmd := &cobra.Command{
		Use:   cli.AppName,
		Short: cli.AppShortDesc,
		Long:  cli.AppLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, flagCfg, flagConfigFile)
			if err != nil {
				logger.Error("Failed to load configuration", "err", err)
				return err
			}
			logger.Debug(fmt.Sprintf("Configuration: %s", cfg.ToJSON()))
			if err := cfg.Validate(); err != nil {
				logger.Error(err.Error())
				return NewError(ErrInvalidConfig, err)
			}

			if len(cfg.LogFile) > 0 {
				closeLog, err := logging.SetOutputFile(cfg.LogFile, logFileMaxSizeMB, logFileMaxBackups)
				if err != nil {
					logger.Error("Failed to set up log file", "err", err)
					return NewError(ErrInvalidConfig, err, "log file")
				}
				defer func() { _ = closeLog() }()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			// we want to know if the user hits Ctrl+Break
			cancelTrap := trapInterrupts(cancel, logger)
			defer close(cancelTrap)

			summary, err := ExecuteLoadTest(ctx, cfg)
			summary.Log(logger)
			fmt.Fprintf(stdout, "Completed in %d seconds\n", int64(summary.TotalTestTime/time.Second))
			return err
		},
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	flags := rootCmd.PersistentFlags()
	flags.IntSliceVarP(&flagCfg.Levels, "levels", "c", flagCfg.Levels, "A comma-separated list of concurrency levels (numbers of simultaneous connections) to test, in order")
	flags.DurationVarP((*time.Duration)(&flagCfg.Window), "window", "T", flagCfg.Window.Duration(), "How long each connection sends requests for, measured from when it opens")
	flags.DurationVar((*time.Duration)(&flagCfg.CoolDown), "cool-down", flagCfg.CoolDown.Duration(), "The pause between consecutive concurrency levels")
	flags.DurationVar((*time.Duration)(&flagCfg.ConnectTimeout), "connect-timeout", flagCfg.ConnectTimeout.Duration(), "The maximum time to wait for each connection to open")
	flags.DurationVar((*time.Duration)(&flagCfg.CloseTimeout), "close-timeout", flagCfg.CloseTimeout.Duration(), "The maximum time to wait for the proxy to acknowledge a close")
	flags.DurationVar((*time.Duration)(&flagCfg.WriteTimeout), "write-timeout", flagCfg.WriteTimeout.Duration(), "The maximum time a single send to the proxy may block")
	flags.DurationVar((*time.Duration)(&flagCfg.LevelTimeout), "level-timeout", 0, "The maximum time to wait for all of a level's connections to finish (0 derives it from the other durations)")
	flags.StringVarP(&flagCfg.ProxyURL, "proxy", "p", flagCfg.ProxyURL, "The WebSockets URL of the proxy under test")
	flags.StringVarP(&flagCfg.TargetURI, "target", "t", flagCfg.TargetURI, "The CoAP URI to which every request is addressed")
	flags.StringVarP(&flagCfg.Output, "output", "o", flagCfg.Output, "The file to which one \"level succeeded failed\" line per level is appended")
	flags.StringVar(&flagCfg.StatsOutput, "stats-output", "", "Where to store a CSV summary of the whole run (optional)")
	flags.StringVar(&flagCfg.MetricsAddr, "metrics-addr", "", "A host:port on which to expose Prometheus metrics (optional)")
	flags.StringVar(&flagCfg.LogFile, "log-file", "", "A file to which to write logs instead of stderr, rotated when it grows large (optional)")
	flags.StringVar(&flagConfigFile, "config", "", "A YAML configuration file; flags given explicitly on the command line override its values")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "Increase output logging verbosity to DEBUG level")
	return rootCmd
}

// resolveConfig starts from the defaults, overlays the configuration file (if
// any) and then re-applies every flag that was explicitly set.
func resolveConfig(cmd *cobra.Command, flagCfg Config, configFile string) (Config, error) {
	if len(configFile) == 0 {
		return flagCfg, nil
	}
	cfg := DefaultConfig()
	if err := LoadConfigFile(configFile, &cfg); err != nil {
		return Config{}, err
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if override, ok := flagOverrides[f.Name]; ok {
			override(&cfg, &flagCfg)
		}
	})
	return cfg, nil
}

func initLogLevel(logger logging.Logger) {
	if flagVerbose {
		logrus.SetLevel(logrus.DebugLevel)
		logger.Debug("Set logging level to DEBUG")
	}
}

// Run must be executed from your `main` function in your Go code. The process
// exits with a non-zero code, specific to the kind of failure, if the load test
// could not complete.
func Run(cli *CLIConfig) {
	logger := logging.NewLogrusLogger("main")
	if err := buildCLI(cli, logger, os.Stdout).Execute(); err != nil {
		logger.Error("Error", "err", err)
		os.Exit(ExitCode(err))
	}
}

func trapInterrupts(onKill func(), logger logging.Logger) chan struct{} {
	sigc := make(chan os.Signal, 1)
	cancelTrap := make(chan struct{})
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigc)
		select {
		case <-sigc:
			logger.Info("Caught kill signal")
			onKill()
		case <-cancelTrap:
			return
		}
	}()
	return cancelTrap
}
