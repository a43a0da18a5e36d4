// Command token issues a bearer token for an account using the server's JWT
// configuration. It is meant for local development and operations scripts.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"ccms/internal/platform/auth"
	"ccms/internal/platform/config"
	"ccms/pkg/domain"
)

func main() {
	account := flag.String("account", "", "account ID to place in the sub claim")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL)")
	flag.Parse()

	if err := run(*account, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(1)
	}
}

func run(rawAccount string, ttl time.Duration) error {
	account, err := domain.ParseAccountID(rawAccount)
	if err != nil {
		return fmt.Errorf("-account: %w", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	if cfg.UsesDevSigningKey() {
		fmt.Fprintln(os.Stderr, "token: warning: signed with the development key")
	}

	token, err := auth.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer).IssueToken(account, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
