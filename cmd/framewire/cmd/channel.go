/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ssargent/framewire/pkg/channel"
	"github.com/ssargent/framewire/pkg/di"
	"github.com/ssargent/framewire/pkg/telem"
)

// channelCmd represents the channel command
var channelCmd = &cobra.Command{
	Use:   "channel",
	Short: "Manage channel definitions",
	Long: `Manage the channels writers and streamers can use. These commands open the
channel database directly, so the server must not be running.

Examples:
  framewire channel create --name temperature --data-type float64
  framewire channel create --name label --data-type string --key 42
  framewire channel list --format json
  framewire channel delete 42`,
}

var channelCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a channel",
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		dataType, _ := cmd.Flags().GetString("data-type")
		key, _ := cmd.Flags().GetUint32("key")

		err := withChannels(cmd, func(svc *channel.Service) error {
			ch, err := createChannel(cmd.Context(), svc, key, name, dataType)
			if err != nil {
				return err
			}
			cmd.Printf("✅ Created channel %s (%s, %s)\n", ch.Key, ch.Name, ch.DataType)
			return nil
		})
		if err != nil {
			cmd.Printf("Error creating channel: %v\n", err)
			os.Exit(1)
		}
	},
}

var channelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		err := withChannels(cmd, func(svc *channel.Service) error {
			channels, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return printChannels(cmd.OutOrStdout(), channels, format)
		})
		if err != nil {
			cmd.Printf("Error listing channels: %v\n", err)
			os.Exit(1)
		}
	},
}

var channelDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a channel",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key, err := channel.ParseKey(args[0])
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		err = withChannels(cmd, func(svc *channel.Service) error {
			return deleteChannel(cmd.Context(), svc, key)
		})
		if err != nil {
			cmd.Printf("Error deleting channel: %v\n", err)
			os.Exit(1)
		}
		cmd.Printf("✅ Deleted channel %s\n", key)
	},
}

func init() {
	rootCmd.AddCommand(channelCmd)
	channelCmd.AddCommand(channelCreateCmd)
	channelCmd.AddCommand(channelListCmd)
	channelCmd.AddCommand(channelDeleteCmd)

	channelCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory (overrides config)")

	channelCreateCmd.Flags().String("name", "", "Channel name (required)")
	channelCreateCmd.Flags().String("data-type", "", "Sample data type, e.g. float64, int32, string (required)")
	channelCreateCmd.Flags().Uint32("key", 0, "Explicit channel key (default: next free key)")
	_ = channelCreateCmd.MarkFlagRequired("name")
	_ = channelCreateCmd.MarkFlagRequired("data-type")

	channelListCmd.Flags().String("format", "table", "Output format: table or json")
}

// withChannels opens the channel database configured for cmd and hands it to fn
func withChannels(cmd *cobra.Command, fn func(*channel.Service) error) (err error) {
	cfg, err := loadConfig(configPath(cmd))
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	svc, err := di.OpenChannels(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to open channels (is the server running?)")
	}
	defer func() {
		err = errors.CombineErrors(err, svc.Close())
	}()
	return fn(svc)
}

// createChannel defines a channel. A zero key takes the next free key.
func createChannel(ctx context.Context, svc *channel.Service, key uint32, name, dataType string) (channel.Channel, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ch := channel.Channel{
		Key:      channel.Key(key),
		Name:     name,
		DataType: telem.DataType(dataType),
	}
	if err := svc.Create(ctx, &ch); err != nil {
		return channel.Channel{}, err
	}
	return ch, nil
}

// deleteChannel removes the channel with key, failing when it does not exist
func deleteChannel(ctx context.Context, svc *channel.Service, key channel.Key) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := svc.Retrieve(ctx, key); err != nil {
		return err
	}
	return svc.Delete(ctx, key)
}

// printChannels writes channels to w as a table or as JSON
func printChannels(w io.Writer, channels []channel.Channel, format string) error {
	switch format {
	case "json":
		if channels == nil {
			channels = []channel.Channel{}
		}
		data, err := json.MarshalIndent(channels, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "table", "":
	default:
		return errors.Newf("unknown format %q", format)
	}

	if len(channels) == 0 {
		_, err := fmt.Fprintln(w, "No channels found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tDATA TYPE\tCREATED")
	for _, ch := range channels {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ch.Key, ch.Name, ch.DataType, ch.CreatedAt.Time().Format(time.RFC3339))
	}
	return tw.Flush()
}
