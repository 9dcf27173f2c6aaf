package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"eco-agent-backend/middleware"

	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenTTL    time.Duration
)

var jwtSecretCmd = &cobra.Command{
	Use:   "jwt-secret",
	Short: "Generate a random JWT signing secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := generateJWTSecret()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), secret)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a JWT for a user id with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID == "" {
			return fmt.Errorf("--user is required")
		}
		token, err := middleware.GenerateToken(tokenUserID, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func generateJWTSecret() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(jwtSecretCmd, tokenCmd)
}
