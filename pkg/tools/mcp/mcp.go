// Package mcp exposes tools from a locally-spawned Model Context Protocol
// server as ordinary tools.Tool entries, so an operator can register a
// subprocess-backed tool server alongside the built-in filesystem/search
// tools without the reasoning loop or tool executor needing to know the
// difference (§4.7, §6.4's tools.mcp_servers option).
//
// Grounded on teacher's pkg/tool/mcptoolset (stdio transport via
// mark3labs/mcp-go), narrowed to stdio-only: this orchestrator spawns local
// tool servers as subprocesses rather than dialing a remote MCP endpoint
// over HTTP/SSE, matching the local-first charter (no server_url surface).
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	sjs "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/tools"
)

// Config describes one MCP server to spawn and connect to over stdio.
type Config struct {
	// Name identifies this server for logging; it prefixes the exposed
	// tool names so two servers can never collide in the registry.
	Name    string
	Command string
	Args    []string
	Env     map[string]string
	// Filter restricts which of the server's tools are exposed. Empty
	// means expose everything the server reports.
	Filter []string
}

// Source connects to one MCP server and discovers its tools. Connection is
// lazy: Discover must be called before Tools returns anything.
type Source struct {
	cfg    Config
	client *client.Client

	mu    sync.Mutex
	tools []tools.Tool
}

// New returns an unconnected Source. Call Discover to spawn the server and
// list its tools.
func New(cfg Config) (*Source, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("mcp: command is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Command
	}
	return &Source{cfg: cfg}, nil
}

// Discover spawns the server subprocess, performs the MCP initialize
// handshake, and lists its tools. It is safe to call once per Source.
func (s *Source) Discover(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := client.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp: failed to start %q: %w", s.cfg.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp: failed to start %q: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "forge", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("mcp: failed to initialize %q: %w", s.cfg.Name, err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("mcp: failed to list tools from %q: %w", s.cfg.Name, err)
	}

	var filter map[string]bool
	if len(s.cfg.Filter) > 0 {
		filter = make(map[string]bool, len(s.cfg.Filter))
		for _, name := range s.cfg.Filter {
			filter[name] = true
		}
	}

	wrapped := make([]tools.Tool, 0, len(listResp.Tools))
	for _, remote := range listResp.Tools {
		if filter != nil && !filter[remote.Name] {
			continue
		}
		t, err := newTool(s, remote)
		if err != nil {
			_ = c.Close()
			return fmt.Errorf("mcp: failed to build schema for tool %q from %q: %w", remote.Name, s.cfg.Name, err)
		}
		wrapped = append(wrapped, t)
	}

	s.client = c
	s.tools = wrapped
	return nil
}

// Tools returns the tools discovered from the server, namespaced by
// "<server>.<tool>" so distinct servers can never collide in a registry.
func (s *Source) Tools() []tools.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tools.Tool(nil), s.tools...)
}

// Close terminates the server subprocess.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// mcpTool adapts one remote MCP tool to the tools.Tool contract. Its
// permission gate is PermissionSubprocess — an MCP server is a subprocess
// this orchestrator spawned, whether or not the tool itself touches a
// filesystem or network.
type mcpTool struct {
	source      *Source
	name        string
	description string
	schema      *sjs.Schema
}

func newTool(source *Source, remote mcp.Tool) (*mcpTool, error) {
	raw, err := json.Marshal(remote.InputSchema)
	if err != nil {
		return nil, err
	}
	schema, err := compileSchema(raw)
	if err != nil {
		return nil, err
	}
	return &mcpTool{
		source:      source,
		name:        source.cfg.Name + "." + remote.Name,
		description: remote.Description,
		schema:      schema,
	}, nil
}

// compileSchema compiles a tool's input schema as reported by the MCP
// server itself, mirroring pkg/tools' generate/validate split but with the
// schema document arriving at runtime instead of being reflected off a Go
// struct.
func compileSchema(raw []byte) (*sjs.Schema, error) {
	compiler := sjs.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func (t *mcpTool) Name() string        { return t.name }
func (t *mcpTool) Description() string { return t.description }
func (t *mcpTool) Timeout() time.Duration { return 0 }

func (t *mcpTool) Validate(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if err := t.schema.Validate(args); err != nil {
		return orcherr.Wrap(orcherr.CodeToolValidationError, t.name+" arguments failed schema validation", err)
	}
	return nil
}

func (t *mcpTool) CanExecute(ctx tools.ExecContext) error {
	if !ctx.Allows(tools.PermissionSubprocess) {
		return orcherr.New(orcherr.CodeIsolationViolation, t.name+" requires the subprocess permission (MCP servers run as spawned subprocesses)")
	}
	return nil
}

func (t *mcpTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	start := time.Now()

	t.source.mu.Lock()
	c := t.source.client
	t.source.mu.Unlock()
	if c == nil {
		return orchtypes.ToolExecutionResult{
			ToolName: t.name, Success: false, Error: "mcp server not connected",
			ExecutionTime: time.Since(start), Timestamp: time.Now(),
		}, orcherr.New(orcherr.CodeToolExecutionError, t.name+": server not connected")
	}

	remoteName := t.name[len(t.source.cfg.Name)+1:]
	req := mcp.CallToolRequest{}
	req.Params.Name = remoteName
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return orchtypes.ToolExecutionResult{
			ToolName: t.name, Success: false, Error: err.Error(),
			ExecutionTime: time.Since(start), Timestamp: time.Now(),
		}, orcherr.Wrap(orcherr.CodeToolExecutionError, t.name+" failed", err)
	}

	text := extractText(resp)
	if resp.IsError {
		return orchtypes.ToolExecutionResult{
			ToolName: t.name, Success: false, Error: text,
			ExecutionTime: time.Since(start), Timestamp: time.Now(),
		}, orcherr.New(orcherr.CodeToolExecutionError, t.name+": "+text)
	}

	return orchtypes.ToolExecutionResult{
		ToolName: t.name, Success: true, Result: text,
		ExecutionTime: time.Since(start), Timestamp: time.Now(),
	}, nil
}

func extractText(resp *mcp.CallToolResult) string {
	var out string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
		}
	}
	return out
}
