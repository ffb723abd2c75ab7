// Package mcp exposes the decision workflow as Model Context Protocol tools
// so agents can request decisions and reviewers can resolve them.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/LLManager/internal/domain/review"
	"github.com/Strob0t/LLManager/internal/domain/workflow"
)

// Workflow is the subset of the workflow service the tools call.
type Workflow interface {
	Start(ctx context.Context, req workflow.StartRequest) (*workflow.Run, error)
	Get(ctx context.Context, tenantID, runID string) (*workflow.Run, error)
	Resume(ctx context.Context, tenantID, runID string, resp review.Response) (*workflow.Run, error)
	ListPending(ctx context.Context, tenantID string) ([]workflow.Run, error)
}

// ServerConfig configures the MCP endpoint.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
}

// ServerDeps are the collaborators behind the tools. A nil Workflow makes
// every tool answer with an error result.
type ServerDeps struct {
	Workflow Workflow
	// Authorize validates a presented key; nil disables authentication.
	Authorize func(key string) bool
}

// Server serves the MCP tools over streamable HTTP.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(instructions),
	)
	s.registerTools()
	s.registerResources()
	return s
}

const instructions = `LLManager approves or rejects requests and learns from human review.
Call request_decision with an assistant_id and the request text; the run stops at a review gate.
A reviewer then calls resolve_review with accept, ignore or edit (status and explanation).`

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the streamable HTTP handler, behind authentication when
// an authorizer is configured.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.deps.Authorize, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}

// Start listens on cfg.Addr and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()
	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	slog.Info("mcp server stopped")
	return nil
}

func toolResultJSON(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}
