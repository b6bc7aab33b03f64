// Package commands implements the boardkit CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-board-kit/boardkit"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath   string
	documentPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "boardkit",
	Short: "Boardkit - markdown kanban board coordination",
	Long: `Boardkit manages a kanban board document: it loads and saves the board,
watches for external edits, and resolves conflicts between local changes
and changes made outside the editor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVarP(&documentPath, "document", "d", "", "Board document path")
}

// loadConfig resolves the effective configuration from the --config and
// --document flags. --document overrides the config file's path.
func loadConfig() (*boardkit.Config, error) {
	if configPath != "" {
		cfg, err := boardkit.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if documentPath != "" {
			cfg.DocumentPath = documentPath
		}
		return cfg, nil
	}
	if documentPath == "" {
		return nil, fmt.Errorf("a board document is required: pass --document or --config")
	}
	return boardkit.DefaultConfig(documentPath), nil
}

func boardkitFromConfig(cfg *boardkit.Config) (*boardkit.Coordinator, error) {
	coord, err := boardkit.FromConfig(cfg).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build coordinator: %w", err)
	}
	return coord, nil
}
