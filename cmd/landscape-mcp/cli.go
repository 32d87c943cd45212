// landscape-mcp - MCP server for Canonical Landscape
// License: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/landscape-community/landscape-mcp/pkg/audit"
	"github.com/landscape-community/landscape-mcp/pkg/config"
	"github.com/landscape-community/landscape-mcp/pkg/gateway"
	"github.com/landscape-community/landscape-mcp/pkg/landscape"
	"github.com/landscape-community/landscape-mcp/pkg/logger"
	"github.com/landscape-community/landscape-mcp/pkg/mcp"
	"github.com/landscape-community/landscape-mcp/pkg/observe"
	"github.com/landscape-community/landscape-mcp/pkg/prompts"
	"github.com/landscape-community/landscape-mcp/pkg/resources"
	"github.com/landscape-community/landscape-mcp/pkg/tools"
	"github.com/landscape-community/landscape-mcp/pkg/tui"
)

var (
	flagDebug  bool
	flagJSON   bool
	flagConfig string
)

// ------------------------------------------------------------------
// Root command
// ------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "landscape-mcp",
		Short: "landscape-mcp — MCP server for Canonical Landscape",
		Long: `landscape-mcp bridges Canonical Landscape systems management to AI
assistants via the Model Context Protocol.

It exposes read-only query tools, operational prompts, and live
infrastructure resources over stdio or HTTP/SSE transports.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				logger.SetLevel(logger.DEBUG)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output in JSON format")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Config file path (default ~/.landscape-mcp/config.yaml)")

	root.AddCommand(
		newMCPCmd(),
		newGatewayCmd(),
		newDashboardCmd(),
		newQueryCmd(),
		newPromptCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)

	return root
}

// ------------------------------------------------------------------
// Shared wiring
// ------------------------------------------------------------------

// stack is the set of collaborators every serving command needs.
type stack struct {
	cfg       *config.Config
	client    landscape.Client
	registry  *tools.Registry
	prompts   *prompts.Provider
	resources *resources.Provider
	metrics   *observe.Metrics
	recorder  *audit.Recorder
	store     audit.Store
}

func buildStack(transport string) (*stack, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	client, err := landscape.NewAPIClient(cfg.API)
	if err != nil {
		return nil, err
	}

	store, err := audit.NewStore(cfg.Audit)
	if err != nil {
		return nil, err
	}

	s := &stack{
		cfg:       cfg,
		client:    client,
		registry:  tools.NewRegistry(),
		prompts:   prompts.NewProvider(client, cfg.Defaults),
		resources: resources.NewProvider(client, cfg.Defaults),
		metrics:   observe.NewMetrics(),
		recorder:  audit.NewRecorder(store, transport),
		store:     store,
	}

	tools.RegisterLandscapeTools(s.registry, tools.Deps{
		Client:   client,
		Defaults: cfg.Defaults,
	})

	client.SetObserver(func(action string, err error) {
		s.metrics.UpstreamCalls.Inc()
		if err != nil {
			s.metrics.UpstreamErrors.Inc()
		}
	})

	s.registry.SetObserver(func(inv tools.Invocation) {
		s.metrics.ToolCalls.Inc()
		s.metrics.ToolLatency.Observe(inv.Duration.Seconds())
		if inv.Status == tools.StatusError {
			s.metrics.ToolErrors.Inc()
		}
		s.recorder.Record(audit.EventToolCall, inv.Tool, string(inv.Status), string(inv.ErrorKind), inv.Duration)
	})

	return s, nil
}

// eventHook observes prompt renders and resource reads from a transport.
func (s *stack) eventHook() mcp.EventFunc {
	return func(event, name string, err error, elapsed time.Duration) {
		status, kind := "ok", ""
		if err != nil {
			status, kind = "error", "invalid_argument"
		}
		switch event {
		case "prompt.get":
			s.metrics.PromptGets.Inc()
			s.recorder.Record(audit.EventPromptGet, name, status, kind, elapsed)
		case "resource.read":
			s.metrics.ResourceReads.Inc()
			s.recorder.Record(audit.EventResourceRead, name, status, kind, elapsed)
		}
	}
}

func (s *stack) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// ------------------------------------------------------------------
// `landscape-mcp mcp` — stdio server
// ------------------------------------------------------------------

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP stdio server (for Claude Desktop, Gemini CLI, etc.)",
		Long: `Start a Model Context Protocol (MCP) server over stdio.

This exposes Landscape query tools (query_computers, query_packages,
query_activities, query_alerts, query_offline, fast_package_lookup),
operational prompts, and infrastructure resources to external AI clients.

Claude Desktop configuration:
  {
    "mcpServers": {
      "landscape": {
        "command": "landscape-mcp",
        "args": ["mcp"]
      }
    }
  }`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack("stdio")
			if err != nil {
				return err
			}
			defer s.close()

			srv := mcp.NewServer(s.registry, s.prompts, s.resources)
			srv.SetObserver(s.eventHook())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.InfoCF("main", "MCP stdio server starting",
				map[string]any{"api": s.cfg.API.URI})
			return srv.Serve(ctx)
		},
	}
}

// ------------------------------------------------------------------
// `landscape-mcp gateway` — HTTP/SSE server
// ------------------------------------------------------------------

func newGatewayCmd() *cobra.Command {
	var (
		flagHost string
		flagPort int
	)

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the HTTP/SSE gateway",
		Long: `Start the MCP server over HTTP with Server-Sent Events.

Endpoints:
  GET  /          server info
  GET  /sse       SSE event stream (MCP transport)
  POST /messages  JSON-RPC message submission
  GET  /health    health check
  GET  /metrics   Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack("http")
			if err != nil {
				return err
			}
			defer s.close()

			if flagHost != "" {
				s.cfg.HTTP.Host = flagHost
			}
			if flagPort != 0 {
				s.cfg.HTTP.Port = flagPort
			}

			gw := gateway.New(s.cfg.HTTP, s.registry, s.prompts, s.resources, s.metrics)
			gw.SetObserver(s.eventHook())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- gw.Start(ctx) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return gw.Stop(shutdownCtx)
			}
		},
	}

	cmd.Flags().StringVar(&flagHost, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "Listen port (overrides config)")
	return cmd
}

// ------------------------------------------------------------------
// `landscape-mcp dashboard` — TUI
// ------------------------------------------------------------------

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Open the interactive machines dashboard",
		Long: `Open a terminal dashboard showing all managed machines with live
status, refreshed from the Landscape API. The filter box accepts the
same query language as the MCP tools, e.g. "tag:production needs:reboot:true".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack("tui")
			if err != nil {
				return err
			}
			defer s.close()

			return tui.RunMachinesDashboard(s.client, s.cfg.Defaults)
		},
	}
}

// ------------------------------------------------------------------
// `landscape-mcp query` — one-shot tool invocation
// ------------------------------------------------------------------

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <tool> [key=value ...]",
		Short: "Invoke a tool once and print the response envelope",
		Long: `Invoke one of the MCP tools directly from the command line.

Examples:
  landscape-mcp query query_computers query="tag:production" limit=10
  landscape-mcp query query_offline since_minutes=120
  landscape-mcp query fast_package_lookup hostname=web-01 package=nginx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack("cli")
			if err != nil {
				return err
			}
			defer s.close()

			toolArgs, err := parseToolArgs(args[1:])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			resp := s.registry.Execute(ctx, args[0], toolArgs)

			data, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))

			if resp.Status == tools.StatusError {
				os.Exit(1)
			}
			return nil
		},
	}
	return cmd
}

// parseToolArgs converts key=value pairs into a tool argument map,
// coercing integers and booleans so numeric arguments validate.
func parseToolArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid argument %q (want key=value)", pair)
		}
		if n, err := strconv.Atoi(value); err == nil {
			args[key] = n
		} else if b, err := strconv.ParseBool(value); err == nil {
			args[key] = b
		} else {
			args[key] = value
		}
	}
	return args, nil
}

// ------------------------------------------------------------------
// `landscape-mcp prompt` — prompt inspection
// ------------------------------------------------------------------

func newPromptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt [name] [key=value ...]",
		Short: "List prompts, or render one with live infrastructure context",
		Long: `Render one of the MCP prompts locally, with the same live Landscape
context an AI client would receive. Without arguments, lists the
available prompts.

Examples:
  landscape-mcp prompt
  landscape-mcp prompt system_health_check environment=production
  landscape-mcp prompt incident_investigation hostname=web-01 timeframe=48`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := buildStack("cli")
			if err != nil {
				return err
			}
			defer s.close()

			if len(args) == 0 {
				for _, p := range s.prompts.List() {
					fmt.Printf("%-26s %s\n", p.Name, p.Description)
					for _, a := range p.Arguments {
						fmt.Printf("    %-22s %s\n", a.Name, a.Description)
					}
				}
				return nil
			}

			promptArgs := make(map[string]string, len(args)-1)
			for _, pair := range args[1:] {
				key, value, found := strings.Cut(pair, "=")
				if !found || key == "" {
					return fmt.Errorf("invalid argument %q (want key=value)", pair)
				}
				promptArgs[key] = value
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := s.prompts.Get(ctx, args[0], promptArgs)
			if err != nil {
				return err
			}

			if flagJSON {
				data, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			var text strings.Builder
			for _, msg := range result.Messages {
				text.WriteString(msg.Content.Text)
				text.WriteString("\n")
			}
			fmt.Print(renderMarkdown(text.String()))
			return nil
		},
	}
	return cmd
}

// renderMarkdown pretty-prints prompt text when stdout is a terminal and
// falls back to the raw text when piped.
func renderMarkdown(text string) string {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return text
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 || width > 120 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}

// ------------------------------------------------------------------
// `landscape-mcp audit` — audit trail inspection
// ------------------------------------------------------------------

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the invocation audit trail",
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var (
		flagType  string
		flagSince string
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List audit events",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := audit.NewStore(cfg.Audit)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no audit backend configured (set LANDSCAPE_AUDIT_BACKEND)")
			}
			defer store.Close()

			opts := audit.QueryOptions{
				Type:  audit.EventType(flagType),
				Limit: flagLimit,
			}
			if flagSince != "" {
				dur, err := time.ParseDuration(flagSince)
				if err != nil {
					return fmt.Errorf("invalid --since duration: %w", err)
				}
				opts.Since = time.Now().Add(-dur)
			}

			events, err := store.Query(context.Background(), opts)
			if err != nil {
				return err
			}

			if flagJSON {
				data, _ := json.MarshalIndent(events, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(events) == 0 {
				fmt.Println("No audit events found.")
				return nil
			}

			fmt.Printf("%-24s %-14s %-28s %-8s %s\n", "TIMESTAMP", "TYPE", "NAME", "STATUS", "DURATION")
			fmt.Println(strings.Repeat("─", 90))
			for _, e := range events {
				fmt.Printf("%-24s %-14s %-28s %-8s %dms\n",
					e.Timestamp.Format(time.RFC3339),
					e.Type,
					e.Name,
					e.Status,
					e.DurationMS,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagType, "type", "", "Filter by event type (tool.call, resource.read, prompt.get)")
	cmd.Flags().StringVar(&flagSince, "since", "", "Only events newer than this duration (e.g. 24h)")
	cmd.Flags().IntVar(&flagLimit, "limit", 50, "Maximum events to show")
	return cmd
}

// ------------------------------------------------------------------
// `landscape-mcp version`
// ------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
