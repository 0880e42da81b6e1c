package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"quorum/internal/config"
	"quorum/internal/history"
	"quorum/internal/logging"
	"quorum/internal/persona"
	"quorum/internal/provider"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	cliProvider string
	cliModel    string
	apiKey      string
	baseURL     string
	timeout     time.Duration

	// Logger
	logger *zap.Logger

	// Wired at startup
	cfg          *config.Config
	personaStore *persona.Store
	historyStore *history.Store
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "quorum - multi-persona consultation engine",
	Long: `quorum dispatches one question to a panel of advisory personas,
collects their responses under a chosen mode (individual, sequential,
synthesis, debate, vote), and optionally combines them into one answer.

Responses stream as they complete; every consultation is persisted to a
local searchable history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath == "" {
			configPath, err = config.Path()
			if err != nil {
				return err
			}
		}
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := logging.Initialize(cfg.StateDir, configPath); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}

		personaStore, err = persona.NewStore(cfg.LibraryDir())
		if err != nil {
			return fmt.Errorf("failed to load persona library: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if historyStore != nil {
			_ = historyStore.Close()
		}
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// openHistory lazily opens the history store for commands that need it.
func openHistory() error {
	if historyStore != nil {
		return nil
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in config")
	}
	var err error
	historyStore, err = history.NewStore(cfg.HistoryPath())
	return err
}

// signalContext returns a context cancelled on SIGINT/SIGTERM and bounded by
// the overall timeout, so an interrupted consultation still yields its
// partial result.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.quorum/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&cliProvider, "provider", "", "preferred provider (anthropic, openai, gemini, gateway)")
	rootCmd.PersistentFlags().StringVar(&cliModel, "model", "", "model override for the preferred provider")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key override")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "base URL override (gateway)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall consultation timeout")

	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(sessionsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// providersCmd reports which providers currently resolve a credential.
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show provider availability and fallback order",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := provider.NewResolver(cfg.Providers.Priority, &cfg.Providers)
		fmt.Println("Fallback priority:")
		for i, name := range resolver.Priority() {
			status := "unavailable (no credential)"
			if provider.HasCredential(name, &cfg.Providers) {
				status = "available"
			}
			fmt.Printf("  %d. %-10s %s\n", i+1, name, status)
		}
		return nil
	},
}
