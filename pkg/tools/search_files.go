package tools

import (
	"context"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// SearchFilesArgs is reflected into this tool's JSON schema.
type SearchFilesArgs struct {
	Query string `json:"query" jsonschema:"required,description=search query, literal or natural language"`
	Path  string `json:"path,omitempty" jsonschema:"description=directory to search under"`
}

// Searcher is implemented by the Hybrid Search Core (pkg/search). Declaring
// it here, rather than importing pkg/search directly, keeps the dependency
// edge one-directional: pkg/search can depend on pkg/tools's types without
// a cycle back.
type Searcher interface {
	Search(ctx context.Context, query, path string) (string, error)
}

// SearchFilesTool wraps a Searcher as a dispatchable tool; falls in
// toolexec's "network" category by name heuristic even though the default
// backend is local, since searches may hit a semantic index service.
type SearchFilesTool struct {
	searcher  Searcher
	validator *schemaValidator
}

func NewSearchFilesTool(searcher Searcher) (*SearchFilesTool, error) {
	v, err := newSchemaValidator(SearchFilesArgs{})
	if err != nil {
		return nil, err
	}
	return &SearchFilesTool{searcher: searcher, validator: v}, nil
}

func (t *SearchFilesTool) Name() string          { return "searchFiles" }
func (t *SearchFilesTool) Description() string   { return "Search the project for files or content matching a query." }
func (t *SearchFilesTool) Timeout() time.Duration { return 30 * time.Second }

func (t *SearchFilesTool) Validate(args map[string]any) error { return t.validator.validate(args) }

func (t *SearchFilesTool) CanExecute(ctx ExecContext) error {
	if !ctx.Allows(PermissionFilesystemRead) {
		return orcherr.New(orcherr.CodeIsolationViolation, "searchFiles requires the filesystem_read permission")
	}
	return nil
}

func (t *SearchFilesTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	start := time.Now()
	query, _ := args["query"].(string)
	if query == "" {
		return failResult(t.Name(), "query parameter is required", start), nil
	}
	path, _ := args["path"].(string)

	result, err := t.searcher.Search(ctx, query, path)
	if err != nil {
		return failResult(t.Name(), err.Error(), start), nil
	}
	return okResult(t.Name(), result, start), nil
}
