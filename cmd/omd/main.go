// OMD - classified ingestion into a metadata catalog, data lake and
// semantic index.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sujanshetty01/OMD/pkg/config"
	"github.com/sujanshetty01/OMD/pkg/logging"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "omd",
	Short: "OMD - classified ingestion for catalog, lake and search",
	Long: `OMD profiles tabular files, tags sensitive columns, registers them in a
metadata catalog, archives them as Parquet and indexes their rows for
semantic search.

Run "omd serve" to start the HTTP API, or use the ingest and sync
commands directly.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return config.Global().LoadFile(configFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: /etc/omd, ~/.omd, ./.omd.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text, json")
}

// loadConfig returns the merged configuration with flag overrides applied.
func loadConfig() *config.Config {
	cfg := config.Global().Get()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
}
