// Package tools implements the Tool Registry & Validator (C9): the Tool
// contract, a sync.RWMutex-guarded registry mirroring the locking idiom of
// teacher's pkg/tools/local.go, JSON-schema argument validation via
// invopop/jsonschema + santhosh-tekuri/jsonschema, and the can_execute
// security gate consulted before every dispatch (§4.7).
package tools

import (
	"context"
	"time"

	"github.com/forgehq/forge/pkg/orchtypes"
)

// SecurityLevel orders the isolation tiers a sub-agent may run under (§4.9).
// Higher values are more restrictive.
type SecurityLevel int

const (
	SecurityMinimal SecurityLevel = iota
	SecurityStandard
	SecurityStrict
	SecurityMaximum
)

// Permission names a capability gated by CanExecute, e.g. filesystem_read,
// filesystem_write, network, subprocess.
type Permission string

const (
	PermissionFilesystemRead  Permission = "filesystem_read"
	PermissionFilesystemWrite Permission = "filesystem_write"
	PermissionNetwork         Permission = "network"
	PermissionSubprocess      Permission = "subprocess"
)

// ExecContext is the security envelope a caller presents when asking a tool
// whether it may run. It is deliberately small — the full resource-budget
// accounting for a sub-agent lives in pkg/isolation. pkg/server builds one
// of these per Engine from the configured security level (execContextFor).
type ExecContext struct {
	SecurityLevel SecurityLevel
	Permissions   map[Permission]bool
}

// Allows reports whether p was explicitly granted.
func (c ExecContext) Allows(p Permission) bool {
	return c.Permissions[p]
}

// Tool is one dispatchable action the reasoning loop or an operator request
// may invoke.
type Tool interface {
	Name() string
	Description() string

	// Validate checks args against the tool's parameter schema. Returns a
	// *orcherr.Error with CodeToolValidationError on missing required
	// fields or type mismatches.
	Validate(args map[string]any) error

	// CanExecute consults the caller's security envelope. Returns a
	// *orcherr.Error with CodeIsolationViolation when denied.
	CanExecute(ctx ExecContext) error

	Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error)

	// Timeout is this tool's execution timeout override, or 0 to use the
	// caller's default (§4.7: "default 60s; per-tool override allowed").
	Timeout() time.Duration
}

func failResult(tool, msg string, start time.Time) orchtypes.ToolExecutionResult {
	return orchtypes.ToolExecutionResult{
		ToolName:      tool,
		Success:       false,
		Error:         msg,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now(),
	}
}

func okResult(tool, content string, start time.Time) orchtypes.ToolExecutionResult {
	return orchtypes.ToolExecutionResult{
		ToolName:      tool,
		Success:       true,
		Result:        content,
		ExecutionTime: time.Since(start),
		Timestamp:     time.Now(),
	}
}
