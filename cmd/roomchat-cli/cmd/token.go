package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/spf13/cobra"
)

var (
	tokenParticipant string
	tokenName        string
	tokenAvatar      string
	tokenTTL         time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if cfg.GetJWTSecret() == "" {
			return errors.New("JWT_SECRET is not set")
		}
		tok, err := auth.NewTokenProvider(cfg.GetJWTSecret()).Issue(domain.Session{
			ParticipantID: tokenParticipant,
			DisplayName:   tokenName,
			AvatarRef:     tokenAvatar,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVarP(&tokenParticipant, "participant", "p", "", "participant id")
	tokenCmd.Flags().StringVarP(&tokenName, "name", "n", "", "display name")
	tokenCmd.Flags().StringVar(&tokenAvatar, "avatar", "", "avatar reference")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("participant")
}
