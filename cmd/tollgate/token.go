package main

import (
	"encoding/json"
	"time"

	"git.sr.ht/~jakintosh/tollgate/internal/clock"
	"git.sr.ht/~jakintosh/tollgate/internal/config"
	"git.sr.ht/~jakintosh/tollgate/internal/service"
	"git.sr.ht/~jakintosh/tollgate/pkg/tokens"
	"github.com/spf13/cobra"
)

var (
	tokenSubject      string
	tokenEntitlements []string
	tokenLifetime     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Token utilities",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a token with the configured secret",
	Long: `Sign a token locally with JWT_SECRET, without going through a grant.
With no entitlements the token is an admin token for the admin subject.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		issuer, _, err := tokens.InitServer([]byte(cfg.JWT.Secret), cfg.JWT.Algorithm, clock.System())
		if err != nil {
			return err
		}

		lifetime := tokenLifetime
		if lifetime <= 0 {
			lifetime = cfg.JWT.DefaultLifetime()
		}
		claims := tokens.Claims{
			Subject:   tokenSubject,
			ExpiresAt: clock.System().Now().Add(lifetime),
			TokenType: tokens.Type(tokens.TokenTypeAdmin),
		}
		if len(tokenEntitlements) > 0 {
			claims.Entitlements = tokenEntitlements
			claims.TokenType = tokens.Type(tokens.TokenTypeUser)
		}

		token, err := issuer.IssueAccessToken(claims)
		if err != nil {
			return err
		}

		resp := service.TokenResponse{
			AccessToken:  token.Encoded(),
			TokenType:    "bearer",
			Entitlements: claims.Entitlements,
			ExpiresAt:    token.Expiration(),
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(resp)
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", service.AdminSubject, "token subject")
	tokenIssueCmd.Flags().StringSliceVar(&tokenEntitlements, "entitlement", nil, "entitlement to grant (repeatable)")
	tokenIssueCmd.Flags().DurationVar(&tokenLifetime, "lifetime", 0, "token lifetime (default ACCESS_TOKEN_EXPIRE_MINUTES)")
	tokenCmd.AddCommand(tokenIssueCmd)
}
