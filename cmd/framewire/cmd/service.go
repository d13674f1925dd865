/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssargent/framewire/pkg/config"
)

const (
	serviceName = "framewire.service"
	unitPath    = "/etc/systemd/system/" + serviceName
	binaryPath  = "/usr/local/bin/framewire"

	serviceDataDir = "/var/lib/framewire"
)

// serviceCmd represents the service command
var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage framewire as a systemd service",
	Long: `Manage framewire as a systemd service for production deployments.

The unit runs 'framewire serve' against the installed configuration and
restarts on failure.`,
}

var installServiceCmd = &cobra.Command{
	Use:   "install",
	Short: "Install framewire as a systemd service",
	Long: `Install framewire as a systemd service.

This will:
- Create or reuse the configuration
- Generate the systemd unit file
- Enable and optionally start the service

Examples:
  framewire service install
  framewire service install --data-dir /var/lib/framewire --user framewire`,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath(cmd)
		dataDir, _ := cmd.Flags().GetString("data-dir")
		user, _ := cmd.Flags().GetString("user")
		startNow, _ := cmd.Flags().GetBool("start")

		if os.Geteuid() != 0 {
			cmd.Printf("Error: service install requires root privileges\n")
			cmd.Printf("Run with: sudo framewire service install\n")
			os.Exit(1)
		}

		cmd.Printf("🔧 Installing framewire systemd service...\n")

		if dataDir == "" {
			dataDir = serviceDataDir
		}
		cfg, _, err := initialize(path, dataDir, false)
		if err != nil {
			cmd.Printf("Error preparing config: %v\n", err)
			os.Exit(1)
		}
		applyServeFlags(cmd, cfg)
		if err := config.SaveConfig(cfg, path); err != nil {
			cmd.Printf("Error saving config: %v\n", err)
			os.Exit(1)
		}
		cmd.Printf("✅ Configuration at %s\n", path)

		if err := writeSystemdUnit(unitPath, cfg, path, user); err != nil {
			cmd.Printf("Error creating systemd unit: %v\n", err)
			os.Exit(1)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			cmd.Printf("Error reloading systemd: %v\n", err)
			os.Exit(1)
		}
		if err := runSystemctlCommand("enable", serviceName); err != nil {
			cmd.Printf("Error enabling service: %v\n", err)
			os.Exit(1)
		}
		cmd.Printf("✅ Service enabled\n")

		if startNow {
			if err := runSystemctlCommand("start", serviceName); err != nil {
				cmd.Printf("Error starting service: %v\n", err)
				os.Exit(1)
			}
			cmd.Printf("✅ Service started\n")
		}

		cmd.Printf("\nService: %s\n", serviceName)
		cmd.Printf("Config: %s\n", path)
		cmd.Printf("Data: %s\n", cfg.DataDir)
		cmd.Printf("Listen: %s:%d\n", cfg.Bind, cfg.Port)
		if !startNow {
			cmd.Printf("\nTo start the service: sudo systemctl start %s\n", serviceName)
		}
		cmd.Printf("To view logs: sudo journalctl -u %s -f\n", serviceName)
	},
}

// systemctlCmd builds a subcommand that forwards action to systemctl
func systemctlCmd(action, short, done string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			if err := runSystemctlCommand(action, serviceName); err != nil {
				cmd.Printf("Error: systemctl %s: %v\n", action, err)
				os.Exit(1)
			}
			if done != "" {
				cmd.Printf("✅ %s\n", done)
			}
		},
	}
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show framewire service logs",
	Long: `Show framewire service logs using journalctl.

Examples:
  framewire service logs
  framewire service logs -f  # Follow logs`,
	Run: func(cmd *cobra.Command, args []string) {
		follow, _ := cmd.Flags().GetBool("follow")
		lines, _ := cmd.Flags().GetInt("lines")

		if err := runCommand("journalctl", journalArgs(follow, lines)...); err != nil {
			cmd.Printf("Error getting service logs: %v\n", err)
			os.Exit(1)
		}
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Uninstall the framewire service",
	Run: func(cmd *cobra.Command, args []string) {
		if os.Geteuid() != 0 {
			cmd.Printf("Error: service uninstall requires root privileges\n")
			cmd.Printf("Run with: sudo framewire service uninstall\n")
			os.Exit(1)
		}

		cmd.Printf("🗑️  Uninstalling framewire service...\n")

		_ = runSystemctlCommand("stop", serviceName) // may already be stopped
		if err := runSystemctlCommand("disable", serviceName); err != nil {
			cmd.Printf("Warning: could not disable service: %v\n", err)
		}
		if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
			cmd.Printf("Error removing unit file: %v\n", err)
			os.Exit(1)
		}
		if err := runSystemctlCommand("daemon-reload"); err != nil {
			cmd.Printf("Error reloading systemd: %v\n", err)
			os.Exit(1)
		}

		cmd.Printf("✅ framewire service uninstalled\n")
		cmd.Printf("Note: configuration and data files were not removed\n")
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)

	serviceCmd.AddCommand(installServiceCmd)
	serviceCmd.AddCommand(systemctlCmd("start", "Start the framewire service", "framewire service started"))
	serviceCmd.AddCommand(systemctlCmd("stop", "Stop the framewire service", "framewire service stopped"))
	serviceCmd.AddCommand(systemctlCmd("restart", "Restart the framewire service", "framewire service restarted"))
	serviceCmd.AddCommand(systemctlCmd("status", "Show framewire service status", ""))
	serviceCmd.AddCommand(logsCmd)
	serviceCmd.AddCommand(uninstallCmd)

	addServeFlags(installServiceCmd)
	installServiceCmd.Flags().String("user", "framewire", "User to run the service as")
	installServiceCmd.Flags().Bool("start", true, "Start the service after installation")

	logsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	logsCmd.Flags().IntP("lines", "n", 0, "Number of lines to show")
}

// systemdUnit renders the unit file running framewire with configPath as user
func systemdUnit(cfg *config.Config, configPath, user string) string {
	return fmt.Sprintf(`[Unit]
Description=framewire telemetry frame server
After=network-online.target
Wants=network-online.target

[Service]
User=%s
Group=%s
ExecStart=%s serve --config %s
Restart=on-failure
NoNewPrivileges=true
UMask=0077
ReadWritePaths=%s
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, user, user, binaryPath, configPath, cfg.DataDir, filepath.Dir(configPath))
}

// writeSystemdUnit writes the unit for cfg to path
func writeSystemdUnit(path string, cfg *config.Config, configPath, user string) error {
	return os.WriteFile(path, []byte(systemdUnit(cfg, configPath, user)), 0600)
}

func journalArgs(follow bool, lines int) []string {
	args := []string{"-u", serviceName}
	if follow {
		args = append(args, "-f")
	}
	if lines > 0 {
		args = append(args, fmt.Sprintf("-n%d", lines))
	}
	return args
}

// runSystemctlCommand runs a systemctl command
func runSystemctlCommand(args ...string) error {
	return runCommand("systemctl", args...)
}

// runCommand runs a system command and returns its error
func runCommand(command string, args ...string) error {
	cmd := exec.Command(command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
