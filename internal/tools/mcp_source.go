package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/renegade-studio/matrix/internal/config"
)

// MCPSource discovers and proxies tools from a remote MCP server over
// stdio, wrapping mark3labs/mcp-go's client (spec.md §4.5's "remote
// tool source"). SSE/streamable-http transports share the same
// client; stdio spawns a subprocess per server.
type MCPSource struct {
	name string
	cfg  config.RemoteToolServerConfig

	mu        sync.RWMutex
	client    *client.Client
	tools     map[string]Tool
	connected bool
}

func NewMCPSource(cfg config.RemoteToolServerConfig) *MCPSource {
	return &MCPSource{name: cfg.Name, cfg: cfg, tools: make(map[string]Tool)}
}

func (s *MCPSource) Name() string { return s.name }
func (s *MCPSource) Type() string { return "mcp" }

func (s *MCPSource) DiscoverTools(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	var mcpClient *client.Client
	var err error
	switch s.cfg.Transport {
	case "stdio", "":
		mcpClient, err = client.NewStdioMCPClient(s.cfg.Command, nil)
	case "sse":
		mcpClient, err = client.NewSSEMCPClient(s.cfg.URL)
	case "http", "streamable-http":
		mcpClient, err = client.NewStreamableHttpClient(s.cfg.URL)
	default:
		return fmt.Errorf("mcp source %s: unsupported transport %q", s.name, s.cfg.Transport)
	}
	if err != nil {
		return fmt.Errorf("mcp source %s: create client: %w", s.name, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("mcp source %s: start: %w", s.name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "matrix", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcp source %s: initialize: %w", s.name, err)
	}

	listResp, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("mcp source %s: list tools: %w", s.name, err)
	}

	for _, t := range listResp.Tools {
		s.tools[t.Name] = &mcpTool{
			source: s,
			info: Info{
				Name:        t.Name,
				Description: t.Description,
				Source:      s.name,
			},
		}
	}

	s.client = mcpClient
	s.connected = true
	slog.Info("mcp source connected", "name", s.name, "tools", len(s.tools))
	return nil
}

func (s *MCPSource) ListTools() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t.Info())
	}
	return out
}

func (s *MCPSource) GetTool(name string) (Tool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tools[name]
	return t, ok
}

func (s *MCPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

type mcpTool struct {
	source *MCPSource
	info   Info
}

func (t *mcpTool) Info() Info { return t.info }

func (t *mcpTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	t.source.mu.RLock()
	c := t.source.client
	t.source.mu.RUnlock()
	if c == nil {
		return Result{}, fmt.Errorf("mcp tool %s: source not connected", t.info.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.info.Name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return Result{Success: false, ToolName: t.info.Name, Error: err.Error()}, fmt.Errorf("mcp tool %s: call failed: %w", t.info.Name, err)
	}

	var content string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			content += tc.Text
		}
	}

	if resp.IsError {
		return Result{Success: false, ToolName: t.info.Name, Error: content}, nil
	}
	return Result{Success: true, ToolName: t.info.Name, Content: content}, nil
}
