package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// ListFilesArgs is reflected into this tool's JSON schema.
type ListFilesArgs struct {
	Path     string `json:"path,omitempty" jsonschema:"description=directory to list, relative to the working directory"`
	MaxFiles int    `json:"maxFiles,omitempty" jsonschema:"description=maximum number of entries to return"`
}

// ListFilesTool lists directory entries non-recursively, matching the
// path:="." / maxFiles:=50 default-argument contract the reasoning parser
// applies when the model omits them (§4.6).
type ListFilesTool struct {
	workingDir string
	validator  *schemaValidator
}

func NewListFilesTool(workingDir string) (*ListFilesTool, error) {
	if workingDir == "" {
		workingDir = "."
	}
	v, err := newSchemaValidator(ListFilesArgs{})
	if err != nil {
		return nil, err
	}
	return &ListFilesTool{workingDir: workingDir, validator: v}, nil
}

func (t *ListFilesTool) Name() string          { return "listFiles" }
func (t *ListFilesTool) Description() string   { return "List directory entries, non-recursively." }
func (t *ListFilesTool) Timeout() time.Duration { return 0 }

func (t *ListFilesTool) Validate(args map[string]any) error { return t.validator.validate(args) }

func (t *ListFilesTool) CanExecute(ctx ExecContext) error {
	if !ctx.Allows(PermissionFilesystemRead) {
		return orcherr.New(orcherr.CodeIsolationViolation, "listFiles requires the filesystem_read permission")
	}
	return nil
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	start := time.Now()
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	if err := validateRelativePath(path); err != nil {
		return failResult(t.Name(), err.Error(), start), nil
	}
	maxFiles := 50
	if mf, ok := args["maxFiles"].(float64); ok && mf > 0 {
		maxFiles = int(mf)
	}

	full := filepath.Join(t.workingDir, path)
	entries, err := os.ReadDir(full)
	if err != nil {
		return failResult(t.Name(), fmt.Sprintf("failed to list directory: %v", err), start), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	truncated := false
	if len(names) > maxFiles {
		names = names[:maxFiles]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DIR: %s\n", path)
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if truncated {
		fmt.Fprintf(&b, "... truncated at %d entries\n", maxFiles)
	}
	return okResult(t.Name(), b.String(), start), nil
}
