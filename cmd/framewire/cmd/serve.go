/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/framewire/pkg/config"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the frame server",
	Long: `Start the framewire server. Writers connect to /api/v1/frame/write and
streamers to /api/v1/frame/stream; channels are managed under /api/v1/channels.

Settings come from the config file when it exists and are overridden by flags.

Examples:
  framewire serve
  framewire serve --config ./framewire.yaml --port 9000
  framewire serve --data-dir ./data --api-key mysecretkey --fallback msgpack`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath(cmd))
		if err != nil {
			cmd.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		applyServeFlags(cmd, cfg)

		verbose, _ := cmd.Flags().GetBool("verbose")
		if err := serve(cmd.Context(), cfg, verbose); err != nil {
			cmd.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("data-dir", "d", "", "Data directory (overrides config)")
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	cmd.Flags().String("bind", "", "Address to bind server to (overrides config)")
	cmd.Flags().String("api-key", "", "API key required under /api/v1 (overrides config)")
	cmd.Flags().String("fallback", "", "Fallback codec, json or msgpack (overrides config)")
	cmd.Flags().String("log-level", "", "Log level (overrides config)")
}

// applyServeFlags overrides cfg with the flags explicitly set on cmd
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("port") {
		cfg.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("bind") {
		cfg.Bind, _ = flags.GetString("bind")
	}
	if flags.Changed("api-key") {
		cfg.Security.APIKey, _ = flags.GetString("api-key")
	}
	if flags.Changed("fallback") {
		cfg.Codec.Fallback, _ = flags.GetString("fallback")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
}

// serve runs the server for cfg until ctx ends or the process is interrupted
func serve(ctx context.Context, cfg *config.Config, verbose bool) error {
	if container == nil {
		return errors.New("dependency container not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := container.Logger(cfg, verbose)
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting framewire",
		zap.String("addr", net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port))),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("auth", cfg.Security.APIKey != ""),
	)
	return container.Serve(ctx, cfg, logger)
}
