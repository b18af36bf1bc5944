// AngelaMos | 2026
// keys.go

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carterperez-dev/dreamdiary-backend/internal/auth"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
)

func newKeygenCommand() *cobra.Command {
	var privatePath, publicPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ES256 key pair for local tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := auth.GenerateKeyPair(privatePath, publicPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", privatePath, publicPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&privatePath, "private", "keys/private.pem", "private key output path")
	cmd.Flags().StringVar(&publicPath, "public", "keys/public.pem", "public key output path")

	return cmd
}

func newTokenCommand() *cobra.Command {
	var claims middleware.AccessTokenClaims

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the configured private key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			verifier, err := auth.NewVerifier(cfg.Auth)
			if err != nil {
				return err
			}

			token, err := verifier.IssueToken(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&claims.UserID, "sub", "", "subject (user id)")
	cmd.Flags().StringVar(&claims.Role, "role", "user", "role claim")
	cmd.Flags().StringVar(&claims.Email, "email", "", "email claim")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}
