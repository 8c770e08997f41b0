// ABOUTME: Entry point for the uta-gateway bridge server and its operator commands
// ABOUTME: Builds the cobra command tree and resolves config and data paths

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389/uta-gateway/internal/config"
)

// version is set with -ldflags "-X main.version=..." at build time.
var version = "dev"

// getConfigPath returns the path to the gateway config file.
// Priority: UTA_CONFIG env var > XDG_CONFIG_HOME/uta/gateway.yaml > ~/.config/uta/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("UTA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "uta", "gateway.yaml")
}

// getDataPath returns the path to the uta data directory.
// Priority: XDG_DATA_HOME/uta > ~/.local/share/uta
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "uta")
}

// loadConfig loads the config at path. A missing file yields the defaults
// so the gateway runs with zero setup on localhost.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), false, nil
	}
	return nil, false, fmt.Errorf("loading config: %w", err)
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	addr       string
}

func (o *rootOptions) config() (*config.Config, bool, error) {
	path := o.configPath
	if path == "" {
		path = getConfigPath()
	}
	return loadConfig(path)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "uta-gateway",
		Short: "Bridge between conversational clients and interchangeable AI backends",
		Long: `uta-gateway accepts user messages over HTTP, routes each one to the
highest-priority available backend adapter (anthropic, openai, gemini,
ollama, desktop), fails over on errors and streams every session event
back to clients over Server-Sent Events.

Quick Start:
  uta-gateway init          # write a starter config
  uta-gateway serve         # start the gateway
  uta-gateway heartbeat     # show sessions, adapters and telemetry`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (default $UTA_CONFIG or ~/.config/uta/gateway.yaml)")
	root.PersistentFlags().StringVar(&opts.addr, "addr", "", "Gateway address for client commands (default server.http_addr)")

	root.AddCommand(
		newServeCmd(opts),
		newHealthCmd(opts),
		newHeartbeatCmd(opts),
		newSessionsCmd(opts),
		newInitCmd(opts),
		newTokenCmd(opts),
		newHistoryCmd(opts),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
