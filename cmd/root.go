// Package cmd implements the smriti CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/theirongolddev/smriti/internal/config"
	"github.com/theirongolddev/smriti/internal/model"
	"github.com/theirongolddev/smriti/internal/source"
	"github.com/theirongolddev/smriti/internal/store"
)

var (
	flagConfig  string
	flagDBPath  string
	flagVerbose bool
	flagQuiet   bool
)

// Loaded once per invocation by the root PersistentPreRunE.
var (
	cfg    = config.DefaultConfig()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "smriti",
	Short: "Memory store for coding agent sessions",
	Long: "Ingest Claude Code, Codex, Cline and Copilot transcripts into a local\n" +
		"store of structured messages, tool facts and session costs.",
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		load := config.Load
		if flagConfig != "" {
			load = func() (config.Config, error) { return config.LoadFrom(flagConfig) }
		}
		c, err := load()
		if err != nil {
			return err
		}
		if flagDBPath != "" {
			c.General.DBPath = flagDBPath
		}
		cfg = c

		l, err := newLogger(cfg.Logging, flagVerbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default "+config.ConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Database path (overrides config and "+config.EnvDBPath+")")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays clean.
func newLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if lc.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}

	level := zapcore.InfoLevel
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			return nil, fmt.Errorf("logging level %q: %w", lc.Level, err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// openStore opens the configured database.
func openStore() (*store.Store, error) {
	path := cfg.DatabasePath()
	logger.Debug("opening store", zap.String("path", path))
	return store.Open(path)
}

// selectAgents resolves command arguments to agents, defaulting to the
// agents enabled in config.
func selectAgents(args []string) ([]model.Agent, error) {
	if len(args) == 0 {
		return cfg.EnabledAgents(), nil
	}
	agents := make([]model.Agent, 0, len(args))
	for _, a := range args {
		agent := model.Agent(strings.ToLower(a))
		if _, err := source.New(agent, source.Options{}); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// agentRoots returns the log root for each agent: the configured one, or
// the adapter's default under the user's home.
func agentRoots(agents []model.Agent) map[model.Agent]string {
	home, _ := os.UserHomeDir()
	roots := make(map[model.Agent]string, len(agents))
	for _, a := range agents {
		if r := cfg.LogRoot(a); r != "" {
			roots[a] = r
			continue
		}
		if ad, err := source.New(a, source.Options{}); err == nil {
			roots[a] = ad.DefaultRoot(home)
		}
	}
	return roots
}
