// ABOUTME: Operator commands that query a running gateway over HTTP
// ABOUTME: health checks liveness, heartbeat and sessions render the diagnostics endpoint

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/uta-gateway/internal/gateway"
)

const clientTimeout = 10 * time.Second

// baseURL resolves the gateway address from --addr or server.http_addr.
func (o *rootOptions) baseURL() (string, error) {
	addr := o.addr
	if addr == "" {
		cfg, _, err := o.config()
		if err != nil {
			return "", err
		}
		addr = cfg.Server.HTTPAddr
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/"), nil
}

func get(ctx context.Context, url string) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, clientTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func fetchHeartbeat(ctx context.Context, opts *rootOptions) (*gateway.HeartbeatResponse, error) {
	base, err := opts.baseURL()
	if err != nil {
		return nil, err
	}
	status, body, err := get(ctx, base+"/uta/heartbeat")
	if err != nil {
		return nil, fmt.Errorf("heartbeat request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("heartbeat failed: status %d", status)
	}

	var hb gateway.HeartbeatResponse
	if err := json.Unmarshal(body, &hb); err != nil {
		return nil, fmt.Errorf("decoding heartbeat: %w", err)
	}
	return &hb, nil
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check gateway liveness and adapter readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := opts.baseURL()
			if err != nil {
				return err
			}

			status, _, err := get(cmd.Context(), base+"/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			if status != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", status)
			}

			status, body, err := get(cmd.Context(), base+"/health/ready")
			if err != nil {
				return fmt.Errorf("readiness check failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if status != http.StatusOK {
				color.New(color.FgYellow).Fprintf(out, "healthy, not ready: %s\n", strings.TrimSpace(string(body)))
				return nil
			}
			color.New(color.FgGreen).Fprintf(out, "healthy, %s\n", strings.TrimSpace(string(body)))
			return nil
		},
	}
}

func newHeartbeatCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Show runtime config, adapter status and telemetry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hb, err := fetchHeartbeat(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(hb)
			}
			printHeartbeat(out, hb)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw heartbeat JSON")
	return cmd
}

func printHeartbeat(out io.Writer, hb *gateway.HeartbeatResponse) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	cyan.Fprintln(out, "Runtime")
	fmt.Fprintf(out, "  mode:      %s\n", hb.Runtime.DefaultMode)
	fmt.Fprintf(out, "  priority:  %s\n", strings.Join(hb.Runtime.AdapterPriority, ", "))
	fmt.Fprintf(out, "  failover:  %t\n", hb.Runtime.FailoverEnabled)
	fmt.Fprintf(out, "  sessions:  %d\n\n", len(hb.ActiveSessions))

	cyan.Fprintln(out, "Adapters")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tSTATUS\tCALLS\tSUCCESS\tAVG MS\tDETAIL")
	for _, st := range hb.Adapters {
		state := red.Sprint("down")
		if st.Available {
			state = green.Sprint("up")
		}
		snap := hb.Telemetry[st.ID]
		fmt.Fprintf(tw, "  %s\t%s\t%d\t%.0f%%\t%.1f\t%s\n",
			st.ID, state, snap.Invocations, snap.SuccessRate*100, snap.AvgDurationMs, formatDetail(st.Detail))
	}
	_ = tw.Flush()
}

// formatDetail renders status detail as sorted key=value pairs.
func formatDetail(detail map[string]any) string {
	keys := slices.Sorted(maps.Keys(detail))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, detail[k]))
	}
	return strings.Join(parts, " ")
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hb, err := fetchHeartbeat(cmd.Context(), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(hb.ActiveSessions) == 0 {
				fmt.Fprintln(out, "no active sessions")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tUSER\tADAPTER\tSTREAMS\tLAST ACTIVE")
			for _, s := range hb.ActiveSessions {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					s.ID, s.UserID, s.Adapter, s.Subscribers, s.LastActive.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}
