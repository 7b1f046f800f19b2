package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// WriteFileArgs is reflected into this tool's JSON schema.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,description=file path, relative to the working directory"`
	Content string `json:"content" jsonschema:"required,description=full file content to write"`
}

// WriteFileTool creates or overwrites a file. Grounded on teacher's
// pkg/tools/file_writer.go; falls in toolexec's "file" category (cap 2).
type WriteFileTool struct {
	workingDir  string
	maxFileSize int64
	validator   *schemaValidator
}

func NewWriteFileTool(workingDir string, maxFileSize int64) (*WriteFileTool, error) {
	if workingDir == "" {
		workingDir = "."
	}
	if maxFileSize <= 0 {
		maxFileSize = 1 << 20
	}
	v, err := newSchemaValidator(WriteFileArgs{})
	if err != nil {
		return nil, err
	}
	return &WriteFileTool{workingDir: workingDir, maxFileSize: maxFileSize, validator: v}, nil
}

func (t *WriteFileTool) Name() string          { return "writeFile" }
func (t *WriteFileTool) Description() string   { return "Create or overwrite a file with the given content." }
func (t *WriteFileTool) Timeout() time.Duration { return 0 }

func (t *WriteFileTool) Validate(args map[string]any) error { return t.validator.validate(args) }

func (t *WriteFileTool) CanExecute(ctx ExecContext) error {
	if !ctx.Allows(PermissionFilesystemWrite) {
		return orcherr.New(orcherr.CodeIsolationViolation, "writeFile requires the filesystem_write permission")
	}
	return nil
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	start := time.Now()
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return failResult(t.Name(), "path parameter is required", start), nil
	}
	if err := validateRelativePath(path); err != nil {
		return failResult(t.Name(), err.Error(), start), nil
	}
	if int64(len(content)) > t.maxFileSize {
		return failResult(t.Name(), fmt.Sprintf("content too large: %d bytes (max %d)", len(content), t.maxFileSize), start), nil
	}

	full := filepath.Join(t.workingDir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return failResult(t.Name(), fmt.Sprintf("failed to create parent directory: %v", err), start), nil
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return failResult(t.Name(), fmt.Sprintf("failed to write file: %v", err), start), nil
	}
	return okResult(t.Name(), fmt.Sprintf("wrote %d bytes to %s", len(content), path), start), nil
}
