// Package cli implements the fissio-retrieve command tree.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// DefaultConfigFile is read when --config is not given. A missing file means defaults.
const DefaultConfigFile = "fissio-retrieve.yaml"

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	dsn        string
	snapshot   string
	logLevel   string
	envFile    string
}

// NewRootCommand creates the root command.
func NewRootCommand(version string) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "fissio-retrieve",
		Short: "Chunk, embed, store and search documents",
		Long: `fissio-retrieve splits text into overlapping chunks, embeds them and keeps them
in a vector store: in memory (persisted to a snapshot file), SQLite, or
PostgreSQL with pgvector. Queries return the most similar chunks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", DefaultConfigFile, "config file path")
	flags.StringVar(&opts.dsn, "dsn", "", "store DSN: memory, sqlite://path or postgres://... (overrides config)")
	flags.StringVar(&opts.snapshot, "snapshot", "", "snapshot file for the memory store (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	rootCmd.AddCommand(newChunkCommand(opts))
	rootCmd.AddCommand(newIndexCommand(opts))
	rootCmd.AddCommand(newSearchCommand(opts))
	rootCmd.AddCommand(newDeleteCommand(opts))
	rootCmd.AddCommand(newExportCommand(opts))
	rootCmd.AddCommand(newImportCommand(opts))
	rootCmd.AddCommand(newVersionCommand(version))

	return rootCmd
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			if version == "" {
				version = "dev"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fissio-retrieve %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// loadEnvFile loads path into the environment. Existing variables win and a
// missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
