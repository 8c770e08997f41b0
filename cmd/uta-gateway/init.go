// ABOUTME: init writes a starter config with a random JWT secret
// ABOUTME: token mints a caller JWT for a user id using the configured secret

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/uta-gateway/internal/auth"
)

const starterConfig = `# uta-gateway configuration
# Generated by uta-gateway init

server:
  http_addr: "%s"

logging:
  level: "info"
  format: "text"

runtime:
  default_mode: "auto"
  adapter_priority: ["anthropic", "openai", "gemini", "ollama", "desktop"]
  failover_enabled: true

adapters:
  anthropic:
    api_key: "${ANTHROPIC_API_KEY}"
  openai:
    api_key: "${OPENAI_API_KEY}"
  gemini:
    api_key: "${GEMINI_API_KEY}"
  ollama:
    base_url: "http://127.0.0.1:11434"
  desktop:
    base_url: "http://127.0.0.1:17871"

sessions:
  idle_timeout: "30m"
  keepalive_interval: "15s"

telemetry:
  database_path: "%s"

auth:
  jwt_secret: "%s"
`

// generateSecret returns a base64 secret of 32 random bytes.
func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func newInitCmd(opts *rootOptions) *cobra.Command {
	var (
		httpAddr string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPathOrDefault()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}

			secret, err := generateSecret()
			if err != nil {
				return err
			}
			dbPath := filepath.Join(getDataPath(), "telemetry.db")

			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}

			content := fmt.Sprintf(starterConfig, httpAddr, dbPath, secret)
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				return fmt.Errorf("writing config file: %w", err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "  ✓ Created config: %s\n", path)
			fmt.Fprintln(out)
			color.New(color.FgYellow).Fprintln(out, "  Ready to go:")
			fmt.Fprintln(out, "    uta-gateway serve              # start the gateway")
			fmt.Fprintln(out, "    uta-gateway token --user <id>  # mint a caller token")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http-addr", "127.0.0.1:8080", "HTTP listen address")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config")
	return cmd
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a caller JWT for POST /uta/session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return errors.New("--user is required")
			}

			cfg, _, err := opts.config()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}

			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return fmt.Errorf("creating JWT verifier: %w", err)
			}
			token, err := verifier.Generate(userID, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id the token is issued for (JWT sub)")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
