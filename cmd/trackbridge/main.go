// Command trackbridge migrates GForge tracker items into GitHub issues so that
// every issue number equals the trackeritem ID it came from.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trackbridge/trackbridge/internal/config"
	"github.com/trackbridge/trackbridge/internal/debug"
	"github.com/trackbridge/trackbridge/internal/telemetry"
	"github.com/trackbridge/trackbridge/internal/ui"
)

var (
	configPath  string
	envFile     string
	verboseFlag bool
	quietFlag   bool
	jsonOutput  bool

	// settings holds defaults and env bindings; commands bind their flags into it.
	settings = config.New()

	rootCtx    = context.Background()
	rootCancel context.CancelFunc

	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./trackbridge.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Dotenv file with TRACKBRIDGE_* secrets")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "trackbridge",
	Short: "trackbridge - GForge to GitHub issue migration",
	Long: `Copies every trackeritem of a GForge project into a GitHub repository.
Issue numbers match trackeritem IDs; gaps are filled with closed placeholders.
Runs are resumable: items that already have an issue are skipped.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if show, _ := cmd.Flags().GetBool("version"); show {
			printVersion()
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyVerbosityFlags()
		ui.InitColor()
		if err := telemetry.Init(rootCtx, "trackbridge", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyVerbosityFlags builds the process logger and propagates --verbose to
// the HTTP client trace output.
func applyVerbosityFlags() {
	logger = newLogger(os.Stderr, verboseFlag, quietFlag)
	debug.SetVerbose(verboseFlag)
}

func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// bindFlags maps command flags onto config keys so that a flag, when set,
// wins over the file and the environment.
func bindFlags(cmd *cobra.Command, vp *viper.Viper, keys map[string]string) {
	for flag, key := range keys {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = vp.BindPFlag(key, f) // only fails on a nil flag
		}
	}
}

// loadConfig reads and validates the configuration. The dotenv file is
// only required when --env-file was given.
func loadConfig(requireSource bool) *config.Config {
	explicit := rootCmd.PersistentFlags().Changed("env-file")
	if err := config.LoadDotEnv(envFile, explicit); err != nil {
		FatalError("%v", err)
	}
	cfg, err := config.Load(settings, configPath)
	if err != nil {
		FatalError("%v", err)
	}
	if err := cfg.Validate(requireSource); err != nil {
		if hint := errorHint(err); hint != "" {
			FatalErrorWithHint(err.Error(), hint)
		}
		FatalError("%v", err)
	}
	logger.Debug("configuration loaded", "file", cfg.File, "repo", cfg.Target.Repo, "project", cfg.Source.Project)
	return cfg
}

func printf(format string, args ...interface{}) {
	if quietFlag || jsonOutput {
		return
	}
	fmt.Printf(format, args...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
