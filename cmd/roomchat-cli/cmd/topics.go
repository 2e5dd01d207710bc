package cmd

import (
	"fmt"

	"github.com/nfrund/roomchat/cmd/roomchat-cli/internal/output"
	"github.com/nfrund/roomchat/internal/channel"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/topicmgr"
	"github.com/spf13/cobra"
)

var (
	topicsRooms  []string
	topicsFormat string
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List the pubsub topics used for rooms",
	Long: `List the message and presence topics the server registers for the
given rooms, as they appear on the in-process bus and in traces.

Available subcommands:
  validate  Check a topic name against the naming rules

Examples:
  roomchat-cli topics                         # topics of DEFAULT_ROOM
  roomchat-cli topics --room general --room ops
  roomchat-cli topics --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rooms := topicsRooms
		if len(rooms) == 0 {
			rooms = []string{loadConfig().GetDefaultRoom()}
		}

		manager := topicmgr.NewManager()
		bridge := pubsub.NewWatermillBridge()
		defer bridge.Close()
		buses := []*channel.Bus{
			channel.New(bridge, channel.WithTopicManager(manager)),
			channel.New(bridge, channel.WithNamespace(presence.Namespace), channel.WithTopicManager(manager)),
		}
		for _, bus := range buses {
			defer bus.Close()
			for _, room := range rooms {
				if _, err := bus.Topic(room); err != nil {
					return err
				}
			}
		}

		entries := manager.List()
		switch topicsFormat {
		case "json":
			return output.JSON(cmd.OutOrStdout(), output.NewTopicList(entries))
		case "table":
			output.TopicsTable(cmd.OutOrStdout(), entries)
			return nil
		default:
			return fmt.Errorf("unsupported output format %q, use table or json", topicsFormat)
		}
	},
}

var topicsValidateCmd = &cobra.Command{
	Use:   "validate <topic-name>",
	Short: "Validate a topic name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := topicmgr.NewManager().ValidateTopicName(args[0]); err != nil {
			return fmt.Errorf("invalid topic name: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid topic name\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsValidateCmd)
	topicsCmd.Flags().StringArrayVarP(&topicsRooms, "room", "r", nil, "room name, repeatable (defaults to DEFAULT_ROOM)")
	topicsCmd.Flags().StringVarP(&topicsFormat, "format", "f", "table", "output format (table, json)")
}
