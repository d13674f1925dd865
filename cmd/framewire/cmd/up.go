/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Bootstrap and start the framewire server",
	Long: `Bootstrap framewire by creating a configuration with a generated API key
if none exists, then start the server. This is the recommended way to get
framewire running.

Examples:
  framewire up
  framewire up --data-dir ./mydata --port 9000
  framewire up --config ./custom-config.yaml --print-key`,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath(cmd)
		dataDir, _ := cmd.Flags().GetString("data-dir")
		printKey, _ := cmd.Flags().GetBool("print-key")

		cfg, created, err := initialize(path, dataDir, false)
		if err != nil {
			cmd.Printf("Error bootstrapping: %v\n", err)
			os.Exit(1)
		}
		if created {
			cmd.Printf("🔧 First run detected. Configuration created at %s\n", path)
			if printKey {
				cmd.Printf("🔑 API Key: %s\n", cfg.Security.APIKey)
			}
		} else {
			cmd.Printf("✅ Loaded existing configuration from %s\n", path)
		}

		applyServeFlags(cmd, cfg)

		cmd.Printf("🚀 Starting framewire on %s:%d\n", cfg.Bind, cfg.Port)
		cmd.Printf("📁 Data directory: %s\n", cfg.DataDir)

		verbose, _ := cmd.Flags().GetBool("verbose")
		if err := serve(cmd.Context(), cfg, verbose); err != nil {
			cmd.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
	addServeFlags(upCmd)
	upCmd.Flags().Bool("print-key", false, "Print the generated API key on first run")
}
