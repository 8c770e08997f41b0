// ABOUTME: serve command: prints the startup banner and runs the gateway
// ABOUTME: Blocks until SIGINT/SIGTERM and then shuts the gateway down

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/gateway"
)

const banner = `
        _                            _
  _   _| |_ __ _        __ _  __ _| |_ _____      ____ _ _   _
 | | | | __/ _' |_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | |_| | || (_| |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
  \__,_|\__\__,_|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                       |___/                             |___/
`

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, found, err := opts.config()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printBanner(out, cfg, opts.configPathOrDefault(), found)

			logger := setupLogger(cfg.Logging, out)
			logger.Info("starting uta-gateway",
				"version", version,
				"http_addr", cfg.Server.HTTPAddr,
				"tailscale", cfg.Tailscale.Enabled,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func (o *rootOptions) configPathOrDefault() string {
	if o.configPath != "" {
		return o.configPath
	}
	return getConfigPath()
}

func printBanner(out io.Writer, cfg *config.Config, configPath string, found bool) {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	green.Fprint(out, "    ▶ ")
	if found {
		fmt.Fprintf(out, "Config:    %s\n", configPath)
	} else {
		fmt.Fprintf(out, "Config:    %s ", configPath)
		yellow.Fprintln(out, "(not found, using defaults)")
	}

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Fprint(out, " [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}

	var enabled []string
	for _, id := range bridge.DefaultPriority() {
		if !cfg.Adapters.ByID(id).Disabled {
			enabled = append(enabled, id)
		}
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Adapters:  %s\n", strings.Join(enabled, ", "))

	if cfg.Telemetry.DatabasePath != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "History:   %s\n", cfg.Telemetry.DatabasePath)
	}
	if cfg.Redis.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Redis:     %s\n", cfg.Redis.Addr)
	}
	if cfg.Auth.JWTSecret == "" {
		yellow.Fprintln(out, "    ! caller authentication disabled (auth.jwt_secret unset)")
	}

	fmt.Fprintln(out)
}
