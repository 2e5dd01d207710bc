package cmd

import (
	"fmt"

	"github.com/nfrund/roomchat/cmd/roomchat-cli/internal/output"
	"github.com/nfrund/roomchat/internal/app"
	"github.com/spf13/cobra"
)

var (
	historyRoom   string
	historyFormat string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a room's message history from the configured store",
	Long: `Print a room's message history, oldest first, reading the store
configured by STORE_BACKEND directly.

Examples:
  roomchat-cli history --room general
  roomchat-cli history --room general --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		room := historyRoom
		if room == "" {
			room = cfg.GetDefaultRoom()
		}

		a := app.New(cmd.Context(), cfg)
		defer a.Shutdown()

		st, err := a.Store()
		if err != nil {
			return err
		}
		msgs, err := st.ListByRoom(cmd.Context(), room)
		if err != nil {
			return err
		}

		switch historyFormat {
		case "json":
			return output.JSON(cmd.OutOrStdout(), msgs)
		case "table":
			output.MessagesTable(cmd.OutOrStdout(), msgs)
			return nil
		default:
			return fmt.Errorf("unsupported output format %q, use table or json", historyFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyRoom, "room", "r", "", "room name (defaults to DEFAULT_ROOM)")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "table", "output format (table, json)")
}
