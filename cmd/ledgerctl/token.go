package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/sharedledger/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <participant-id>",
	Args:  cobra.ExactArgs(1),
	Short: "Issue an API token for a registered participant",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be set to at least 32 characters")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := store.GetParticipant(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenDuration).Generate(p)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
