package mcp

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/blockyspot/services"
)

// MCPServer exposes the device services as MCP tools over stdio. Logs must
// not go to stdout while it is running.
type MCPServer struct {
	Server   *server.MCPServer
	services *services.ServiceContainer
	in       io.Reader
	out      io.Writer
}

func NewMCPServer(version string, serviceContainer *services.ServiceContainer) *MCPServer {
	s := &MCPServer{
		Server:   server.NewMCPServer("Blockyspot", version, server.WithToolCapabilities(false)),
		services: serviceContainer,
		in:       os.Stdin,
		out:      os.Stdout,
	}
	s.registerDeviceTools()
	s.registerSystemTools()
	return s
}

func (s *MCPServer) Name() string { return "mcp-stdio" }

// Run serves stdio until ctx is cancelled or stdin is closed.
func (s *MCPServer) Run(ctx context.Context) error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()
	err := server.NewStdioServer(s.Server).Listen(ctx, s.in, s.out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
