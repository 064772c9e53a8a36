package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagarc03/filekeep"
	"github.com/sagarc03/filekeep/config"
	"github.com/sagarc03/filekeep/keybackend"
	"github.com/sagarc03/filekeep/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token --kid <key-id> <subject>",
	Short: "Mint a bearer token signed with a configured HMAC key",
	Long: `Mint an HS256 bearer token for subject, signed with one of the keys in
auth.keys. Intended for development and operator scripts; production tokens
come from the identity provider.

Examples:
  # Read and write access for alice, valid for one hour
  filekeep token --kid 2026-01 alice

  # Admin token for the reconcile endpoint
  filekeep token --kid 2026-01 --scope files:admin --ttl 10m ops`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var (
	tokenKeyID  string
	tokenScopes []string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenKeyID, "kid", "", "signing key id from auth.keys")
	tokenCmd.Flags().StringSliceVar(&tokenScopes, "scope",
		[]string{string(filekeep.ScopeRead), string(filekeep.ScopeWrite)}, "scopes to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("kid")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	secrets, err := keybackend.NewSecretStore(cfg.Auth.Keys)
	if err != nil {
		return fmt.Errorf("load signing keys: %w", err)
	}

	secret, err := secrets.Lookup(tokenKeyID)
	if err != nil {
		return err
	}

	scopes := make([]filekeep.Scope, 0, len(tokenScopes))
	for _, s := range tokenScopes {
		scope := filekeep.Scope(s)
		if scope != filekeep.ScopeRead && scope != filekeep.ScopeWrite && scope != filekeep.ScopeAdmin {
			return fmt.Errorf("unknown scope %q", s)
		}
		scopes = append(scopes, scope)
	}

	signed, err := token.IssueFor(cfg.Auth.Token.Issuer, cfg.Auth.Token.Audience,
		tokenKeyID, secret, args[0], scopes, tokenTTL, time.Now())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
