package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"eco-agent-backend/config"
	"eco-agent-backend/utils"

	mcpadapter "github.com/i2y/langchaingo-mcp-adapter"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"
)

const maxMCPResultChars = 8000

var (
	mcpHTTPClient *http.Client = utils.DefaultHTTPClient()

	invalidToolName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// MCPTool 外部 MCP 服务端提供的工具，名称加上服务端前缀避免冲突
type MCPTool struct {
	name       string
	definition llms.FunctionDefinition
	tool       lctools.Tool
}

var _ Tool = &MCPTool{}

func (t *MCPTool) Name() string {
	return t.name
}

func (t *MCPTool) Definition() llms.FunctionDefinition {
	return t.definition
}

func (t *MCPTool) Call(ctx context.Context, env Env, raw json.RawMessage) (any, error) {
	out, err := t.tool.Call(ctx, string(raw))
	if err != nil {
		return nil, err
	}
	text, truncated := truncateText(out, maxMCPResultChars)
	return map[string]any{"result": text, "truncated": truncated}, nil
}

// MCPToolset 持有到外部 MCP 服务端的连接
type MCPToolset struct {
	clients []*client.Client
	tools   []Tool
}

// ConnectMCP 连接配置的全部 MCP 服务端，单个服务端失败时跳过
func ConnectMCP(ctx context.Context, servers []config.MCPServer) *MCPToolset {
	set := &MCPToolset{}
	for _, server := range servers {
		mcpClient, tools, err := connectMCPServer(ctx, server)
		if err != nil {
			slog.Error("Failed to connect mcp server",
				"server", server.Name,
				"url", server.URL,
				"err", err,
			)
			continue
		}
		set.clients = append(set.clients, mcpClient)
		set.tools = append(set.tools, tools...)
		slog.Info("Connected mcp server", "server", server.Name, "tools", len(tools))
	}
	return set
}

func (s *MCPToolset) Tools() []Tool {
	return s.tools
}

func (s *MCPToolset) Close() error {
	var errs []error
	for _, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func connectMCPServer(ctx context.Context, server config.MCPServer) (*client.Client, []Tool, error) {
	headers := map[string]string{}
	if server.Token != "" {
		headers["Authorization"] = "Bearer " + server.Token
	}

	mcpClient, err := client.NewStreamableHttpClient(server.URL,
		transport.WithHTTPBasicClient(mcpHTTPClient),
		transport.WithHTTPHeaders(headers),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mcp client: %w", err)
	}
	if err := mcpClient.Start(ctx); err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("failed to start mcp client: %w", err)
	}

	// adapter 负责 initialize 握手并把工具包装为 langchaingo 工具
	adapter, err := mcpadapter.New(mcpClient)
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("failed to create mcp adapter: %w", err)
	}
	adapted, err := adapter.Tools()
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("failed to get mcp tools: %w", err)
	}

	listed, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, nil, fmt.Errorf("failed to list mcp tools: %w", err)
	}
	schemas := make(map[string]mcp.Tool, len(listed.Tools))
	for _, t := range listed.Tools {
		schemas[t.Name] = t
	}

	tools := make([]Tool, 0, len(adapted))
	for _, t := range adapted {
		def := llms.FunctionDefinition{
			Name:        mcpToolName(server.Name, t.Name()),
			Description: t.Description(),
			Parameters:  schema(map[string]any{}),
		}
		if s, ok := schemas[t.Name()]; ok {
			if params, err := inputSchema(s); err == nil {
				def.Parameters = params
			}
		}
		tools = append(tools, &MCPTool{name: def.Name, definition: def, tool: t})
	}
	return mcpClient, tools, nil
}

func inputSchema(t mcp.Tool) (map[string]any, error) {
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	if params["type"] == nil {
		params["type"] = "object"
	}
	if params["properties"] == nil {
		params["properties"] = map[string]any{}
	}
	return params, nil
}

func mcpToolName(server, tool string) string {
	name := invalidToolName.ReplaceAllString(server+"__"+tool, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
