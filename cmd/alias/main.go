// Package main is the entry point for the ALIAS assistant CLI.
// ALIAS routes typed or spoken requests to system, math, code, database,
// email, news and open-ended answer capabilities, and remembers every
// exchange in a local SQLite database.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/logging"
)

var (
	version  = "0.1.0"
	cfgPath  string
	dbPath   string
	verbose  bool
	noSpeech bool
	log      = logging.Nop()
)

func main() {
	loadEnvFiles()

	rootCmd := &cobra.Command{
		Use:   "alias",
		Short: "ALIAS - Advanced Logical Interface and Assistant System",
		Long: `ALIAS answers free-text commands: open apps, solve math, write code,
run SQL, read and send email, summarize the news, or just chat. Every
exchange is remembered and used as context for the next one.

Start a chat:        alias chat
One-shot question:   alias ask "what is 12 x 7"
Websocket bridge:    alias serve
Configuration:       alias config show`,
		PersistentPreRunE:  initLogging,
		PersistentPostRunE: closeLogging,
		SilenceUsage:       true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.alias/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "memory database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noSpeech, "no-speech", false, "start with speech output disabled")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ALIAS v%s\n", version)
		},
	})

	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	logDir := filepath.Join(home, ".alias", "logs")
	logFile := logging.SessionLogPath(logDir, time.Now())

	var cfg *logging.Config
	if verbose {
		cfg = logging.VerboseConfig()
	} else {
		cfg = logging.DefaultConfig()
	}
	cfg.FilePath = logFile

	log = logging.New(cfg)
	logging.SetGlobal(log)

	log.Info("ALIAS session started (%s) - logging to %s", cmd.Name(), logFile)
	if verbose {
		log.Debug("config path override: %q, db override: %q", cfgPath, dbPath)
	}
	return nil
}

func closeLogging(cmd *cobra.Command, args []string) error {
	return log.Close()
}
