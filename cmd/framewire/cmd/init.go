/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ssargent/framewire/pkg/config"
	"github.com/ssargent/framewire/pkg/di"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a framewire configuration",
	Long: `Create a configuration file with a freshly generated API key and prepare
the data directory. An existing configuration is left untouched unless --force
is given.

Examples:
  framewire init
  framewire init --config ./framewire.yaml --data-dir ./data --print-key
  framewire init --force`,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath(cmd)
		dataDir, _ := cmd.Flags().GetString("data-dir")
		force, _ := cmd.Flags().GetBool("force")
		printKey, _ := cmd.Flags().GetBool("print-key")

		cfg, created, err := initialize(path, dataDir, force)
		if err != nil {
			cmd.Printf("Error initializing: %v\n", err)
			os.Exit(1)
		}
		if !created {
			cmd.Printf("Configuration already exists at %s (use --force to overwrite)\n", path)
			return
		}

		cmd.Printf("✅ Configuration created at %s\n", path)
		cmd.Printf("📁 Data directory: %s\n", cfg.DataDir)
		if printKey {
			cmd.Printf("\n🔑 API Key: %s\n", cfg.Security.APIKey)
			cmd.Printf("⚠️  Store this key securely! It is also saved in %s\n", path)
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringP("data-dir", "d", "./data", "Data directory for channels and series")
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")
}

// initialize writes a new configuration to path and prepares its data directory.
// An existing configuration is loaded and returned as is unless force is set.
func initialize(path, dataDir string, force bool) (*config.Config, bool, error) {
	if config.ConfigExists(path) && !force {
		cfg, err := config.LoadConfig(path)
		return cfg, false, err
	}

	cfg, err := config.BootstrapConfig(path, dataDir)
	if err != nil {
		return nil, false, err
	}
	if err := prepareDataDir(cfg); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// prepareDataDir creates the data directory and its channel database
func prepareDataDir(cfg *config.Config) error {
	channels, err := di.OpenChannels(cfg)
	if err != nil {
		return err
	}
	return channels.Close()
}
