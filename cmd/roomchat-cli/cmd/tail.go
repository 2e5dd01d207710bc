package cmd

import (
	"errors"
	"fmt"

	"github.com/nfrund/roomchat/cmd/roomchat-cli/internal/output"
	"github.com/nfrund/roomchat/internal/client"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/spf13/cobra"
)

var (
	tailRoom  string
	tailURL   string
	tailToken string
	tailJSON  bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow a room live over a websocket session",
	Long: `Join a room as the token's participant and print history, messages,
deletions and presence changes until interrupted.

Examples:
  roomchat-cli tail --room general --token "$(roomchat-cli token --participant ops)"
  roomchat-cli tail --room general --url https://chat.example.com --token $TOKEN --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tailToken == "" {
			return errors.New("--token is required")
		}
		ctx := cmd.Context()
		c, err := client.Dial(ctx, tailURL, tailRoom, tailToken)
		if err != nil {
			return err
		}
		defer c.Close()

		w := cmd.OutOrStdout()
		var ferr error
		err = c.Follow(ctx, func(f domain.Frame) {
			if ferr != nil {
				return
			}
			if tailJSON {
				ferr = output.JSONLine(w, f)
				return
			}
			output.Frame(w, f)
		})
		if err == nil {
			err = ferr
		}
		if err != nil {
			return fmt.Errorf("tail %s: %w", tailRoom, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringVarP(&tailRoom, "room", "r", "general", "room name")
	tailCmd.Flags().StringVar(&tailURL, "url", "http://localhost:8080", "server base URL")
	tailCmd.Flags().StringVarP(&tailToken, "token", "t", "", "bearer token (see the token command)")
	tailCmd.Flags().BoolVar(&tailJSON, "json", false, "print raw frames as JSON lines")
}
