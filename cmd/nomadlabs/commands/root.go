package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomadlabs/nomadlabs"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "nomadlabs",
	Short: "Nomad Labs - research publishing platform",
	Long: `Nomad Labs serves a research publishing platform: papers, articles and
lab notes written in markdown, with threaded discussions and reactions.

Configuration comes from NOMADLABS_* environment variables, optionally
overlaid by a YAML file given with --config.`,
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
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
}

// loadConfig reads the environment and overlays the --config file.
func loadConfig() (nomadlabs.SiteConfig, error) {
	cfg := nomadlabs.ConfigFromEnv()
	if configPath != "" {
		if err := nomadlabs.LoadConfigFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// openStore opens the posts database named by the configuration.
func openStore() (*nomadlabs.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "data/nomadlabs.db"
	}
	return nomadlabs.NewStore(cfg.DatabasePath)
}
