package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/penwyp/go-chat-recap/internal/analyzer"
	"github.com/penwyp/go-chat-recap/internal/config"
	"github.com/penwyp/go-chat-recap/internal/server"
)

var (
	serveAddr   string
	serveEngine string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis pipeline over HTTP",
	Long: `Starts an HTTP server exposing the analysis pipeline.

Routes:
  POST /api/analyze                 JSON export in, statistics and base64 PNG charts out
  POST /.netlify/functions/analyze  Same handler under the legacy function path
  GET  /healthz                     Liveness probe
  GET  /metrics                     Prometheus metrics

The server stops gracefully on SIGINT or SIGTERM.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address as host:port (overrides server.address and server.port)")
	serveCmd.Flags().StringVar(&serveEngine, "engine", "",
		"HTTP engine (nethttp, fasthttp)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := initLogging(cfg); err != nil {
		return err
	}

	acfg, err := cfg.Pipeline.AnalyzerConfig()
	if err != nil {
		return err
	}
	a, err := analyzer.New(acfg)
	if err != nil {
		return err
	}

	ctx, stop := notifyContext(cmd.Context())
	defer stop()
	return server.New(cfg.Server, a).Run(ctx)
}

// applyServeFlags overrides the server section from --addr and --engine.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		host, port, err := splitAddr(serveAddr)
		if err != nil {
			return err
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if flags.Changed("engine") {
		cfg.Server.Engine = serveEngine
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// splitAddr parses host:port; an empty host listens on all interfaces.
func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid --addr port %q", portStr)
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host, port, nil
}
