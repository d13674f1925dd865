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

var container *di.Container

// SetContainer injects the dependency container used by the commands
func SetContainer(c *di.Container) {
	container = c
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "framewire",
	Short: "framewire - compact telemetry frame transport",
	Long: `framewire streams telemetry frames between writers and streamers over
websockets, using a schema-versioned compact codec and persisting every
written series to a local log.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable development logging")
}

// configPath returns the --config flag or the platform default
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.GetDefaultConfigPath()
	}
	return path
}

// loadConfig loads the configuration at path. A missing file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	if !config.ConfigExists(path) {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}
