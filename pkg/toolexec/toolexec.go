// Package toolexec implements the Async Tool Executor (C8): a categorized,
// batch-scheduled dispatcher over the Tool Registry (pkg/tools). Batches run
// fast tools in parallel, then file tools capped at 2 concurrent, then
// network tools in parallel, then heavy tools serialized — a deterministic,
// category-grouped completion contract (§4.7). The parallel/capped tiers use
// golang.org/x/sync/errgroup, the same concurrency primitive teacher's
// workflowagent.runParallel builds its fan-out on
// (pkg/agent/workflowagent/parallel.go), generalized here from per-agent
// fan-out to per-tool-category scheduling.
package toolexec

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgehq/forge/pkg/cache"
	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/tools"
)

// Category is a batch-scheduling tier assigned to a tool invocation by name
// heuristic (§4.7's categorization table).
type Category int

const (
	CategoryFast Category = iota
	CategoryFile
	CategoryNetwork
	CategoryHeavy
)

const (
	defaultToolTimeout = 60 * time.Second
	defaultFileCap      = 2
	resultCacheTTL      = 60 * time.Second
)

var (
	fastMarkers    = []string{"list", "status", "analyze"}
	fileMarkers    = []string{"read", "write"}
	networkMarkers = []string{"search", "web", "research"}
)

// classify buckets a tool name into one of the four scheduling tiers. Any
// name matching none of the fast/file/network markers falls into heavy,
// which runs serialized — the conservative default for an unrecognized tool.
func classify(toolName string) Category {
	name := strings.ToLower(toolName)
	switch {
	case containsAny(name, fastMarkers):
		return CategoryFast
	case containsAny(name, fileMarkers):
		return CategoryFile
	case containsAny(name, networkMarkers):
		return CategoryNetwork
	default:
		return CategoryHeavy
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Invocation is one requested tool call within a batch.
type Invocation struct {
	Tool string
	Args map[string]any
}

// Outcome pairs an Invocation with its ToolExecutionResult. Err is set when
// the invocation was rejected before Execute ran (unknown tool, schema
// validation failure, or a denied can_execute check) or when Execute itself
// returned an error; Result.Success is always false in those cases too, so
// callers that only look at Result still
// see the correct outcome.
type Outcome struct {
	Invocation Invocation
	Result     orchtypes.ToolExecutionResult
	Err        error
}

// Executor dispatches batches of Invocations against a tools.Registry under
// one fixed security envelope.
type Executor struct {
	registry *tools.Registry
	execCtx  tools.ExecContext
	cache    *cache.TTLCache[orchtypes.ToolExecutionResult]
	timeout  time.Duration
	fileCap  int
}

// Option customizes a newly built Executor.
type Option func(*Executor)

// WithDefaultTimeout overrides the 60s default per-tool timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithFileCap overrides the file-category concurrency cap (default 2).
func WithFileCap(n int) Option {
	return func(e *Executor) { e.fileCap = n }
}

// New builds an Executor over registry, gated by execCtx.
func New(registry *tools.Registry, execCtx tools.ExecContext, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		execCtx:  execCtx,
		cache:    cache.New[orchtypes.ToolExecutionResult](resultCacheTTL),
		timeout:  defaultToolTimeout,
		fileCap:  defaultFileCap,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ClearHistory drops every cached tool result (§4.7: "clear_history()").
func (e *Executor) ClearHistory() {
	e.cache.Clear()
}

// ExecuteBatch runs invocations in the fast -> file -> network -> heavy
// order, fully draining each tier before the next begins. The returned
// slice is grouped by tier in that same order; within a tier, outcomes
// follow the invocations' relative order in the input batch.
func (e *Executor) ExecuteBatch(ctx context.Context, invocations []Invocation) []Outcome {
	var fast, file, network, heavy []Invocation
	for _, inv := range invocations {
		switch classify(inv.Tool) {
		case CategoryFast:
			fast = append(fast, inv)
		case CategoryFile:
			file = append(file, inv)
		case CategoryNetwork:
			network = append(network, inv)
		default:
			heavy = append(heavy, inv)
		}
	}

	var out []Outcome
	out = append(out, e.run(ctx, fast, 0)...)
	out = append(out, e.run(ctx, file, e.fileCap)...)
	out = append(out, e.run(ctx, network, 0)...)
	out = append(out, e.run(ctx, heavy, 1)...)
	return out
}

// run executes invs concurrently up to limit (0 = unbounded). A tool's own
// failure never cancels its siblings: each goroutine always returns nil to
// errgroup, regardless of the invocation's outcome.
func (e *Executor) run(ctx context.Context, invs []Invocation, limit int) []Outcome {
	if len(invs) == 0 {
		return nil
	}
	out := make([]Outcome, len(invs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, inv := range invs {
		i, inv := i, inv
		g.Go(func() error {
			out[i] = e.executeOne(gctx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// executeOne runs the per-tool contract of §4.7: cache lookup, schema
// validation, the can_execute security gate, a timed Execute, and a
// success-only cache write.
func (e *Executor) executeOne(ctx context.Context, inv Invocation) Outcome {
	tool, ok := e.registry.Get(inv.Tool)
	if !ok {
		err := orcherr.New(orcherr.CodeUnknownTool, "unknown tool: "+inv.Tool)
		return Outcome{Invocation: inv, Err: err, Result: failedResult(inv.Tool, err.Error())}
	}

	key := orchtypes.ToolCacheKey(inv.Tool, inv.Args)
	if cached, ok := e.cache.Get(key); ok {
		return Outcome{Invocation: inv, Result: cached}
	}

	if err := tool.Validate(inv.Args); err != nil {
		return Outcome{Invocation: inv, Err: err, Result: failedResult(inv.Tool, err.Error())}
	}
	if err := tool.CanExecute(e.execCtx); err != nil {
		return Outcome{Invocation: inv, Err: err, Result: failedResult(inv.Tool, err.Error())}
	}

	timeout := tool.Timeout()
	if timeout <= 0 {
		timeout = e.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := tool.Execute(callCtx, inv.Args)
	if err != nil {
		return Outcome{Invocation: inv, Err: err, Result: failedResult(inv.Tool, err.Error())}
	}
	if result.Success {
		e.cache.Set(key, result)
	}
	return Outcome{Invocation: inv, Result: result}
}

func failedResult(tool, msg string) orchtypes.ToolExecutionResult {
	return orchtypes.ToolExecutionResult{
		ToolName:  tool,
		Success:   false,
		Error:     msg,
		Timestamp: time.Now(),
	}
}
