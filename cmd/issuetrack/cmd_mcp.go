package main

import (
	"context"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/SonarSource/sonarlint-core-sub018/internal/version"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/config"
	"github.com/SonarSource/sonarlint-core-sub018/pkg/store"
)

var mcpLog = logrus.WithField("component", "mcp")

// MCPServer exposes the known findings store and report tracking as MCP
// tools.
type MCPServer struct {
	store   store.KnownFindingsStore
	tracker *tracker
	cfg     *config.Config
	server  *mcp.Server

	toolCounts sync.Map // map[string]*atomic.Int64
}

func (c *cli) mcpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve known findings over the Model Context Protocol (stdio)",
		Long: `Start an MCP server over stdio. Tools list, search and count known
findings, and track analyzer reports. Logs go to stderr; stdout carries
the JSON-RPC protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			mcpLog.WithFields(logrus.Fields{
				"version": version.String(),
				"data":    c.cfg.DataDir,
				"scope":   c.cfg.Scope,
			}).Info("MCP server starting")

			b, err := c.openBackend(nil)
			if err != nil {
				return err
			}
			defer b.Close()

			s := &MCPServer{store: b.store, tracker: b.tracker, cfg: c.cfg}
			mcpLog.WithField("startup", time.Since(start)).Info("MCP server ready, listening on stdio")
			err = s.Run(ctx)
			mcpLog.WithField("tools", s.getToolCounts()).Info("MCP server stopped")
			return err
		},
	}
}

// Run registers the tools and serves until the client disconnects or ctx
// is done.
func (s *MCPServer) Run(ctx context.Context) error {
	return s.newServer().Run(ctx, &mcp.StdioTransport{})
}

func (s *MCPServer) newServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    version.ApplicationName,
		Version: version.Version,
	}, nil)
	srv.AddReceivingMiddleware(s.toolCountMiddleware())
	s.server = srv
	s.registerTools()
	return srv
}

func (s *MCPServer) incrementToolCount(name string) {
	v, _ := s.toolCounts.LoadOrStore(name, &atomic.Int64{})
	v.(*atomic.Int64).Add(1)
}

func (s *MCPServer) getToolCounts() map[string]int64 {
	counts := make(map[string]int64)
	s.toolCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})
	return counts
}

// toolCountMiddleware counts tool invocations by name.
func (s *MCPServer) toolCountMiddleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method == "tools/call" {
				if params, ok := req.GetParams().(*mcp.CallToolParamsRaw); ok {
					s.incrementToolCount(params.Name)
				}
			}
			return next(ctx, method, req)
		}
	}
}
