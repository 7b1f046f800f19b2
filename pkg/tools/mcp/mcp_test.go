package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/pkg/tools"
)

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(Config{Name: "test"})
	assert.Error(t, err)
}

func TestNew_DefaultsNameToCommand(t *testing.T) {
	s, err := New(Config{Command: "some-mcp-server"})
	require.NoError(t, err)
	assert.Equal(t, "some-mcp-server", s.cfg.Name)
}

func TestSource_Tools_EmptyBeforeDiscover(t *testing.T) {
	s, err := New(Config{Command: "some-mcp-server"})
	require.NoError(t, err)
	assert.Empty(t, s.Tools())
}

func TestDiscover_FailsForNonExistentCommand(t *testing.T) {
	s, err := New(Config{Command: "forge-nonexistent-mcp-server-binary"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, s.Discover(ctx))
}

func TestMcpTool_CanExecute_RequiresSubprocessPermission(t *testing.T) {
	tool := &mcpTool{name: "srv.do_thing", description: "test"}

	assert.Error(t, tool.CanExecute(tools.ExecContext{}))

	granted := tools.ExecContext{Permissions: map[tools.Permission]bool{tools.PermissionSubprocess: true}}
	assert.NoError(t, tool.CanExecute(granted))
}

func TestMcpTool_Execute_FailsWithoutConnection(t *testing.T) {
	source, err := New(Config{Command: "some-mcp-server"})
	require.NoError(t, err)
	tool := &mcpTool{source: source, name: "some-mcp-server.anything"}

	result, err := tool.Execute(context.Background(), map[string]any{})
	assert.Error(t, err)
	assert.False(t, result.Success)
}

func TestExtractText_JoinsMultipleTextBlocks(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "first"},
			mcp.TextContent{Type: "text", Text: "second"},
		},
	}
	assert.Equal(t, "first\nsecond", extractText(result))
}
