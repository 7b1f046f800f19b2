package toolexec

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/tools"
)

type fakeTool struct {
	name    string
	calls   int32
	delay   time.Duration
	success bool
	track   *[]string // records call order, guarded by caller
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "" }
func (f *fakeTool) Timeout() time.Duration { return 0 }
func (f *fakeTool) Validate(args map[string]any) error { return nil }
func (f *fakeTool) CanExecute(ctx tools.ExecContext) error { return nil }
func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return orchtypes.ToolExecutionResult{ToolName: f.name, Success: f.success, Result: "ok"}, nil
}

func TestClassify(t *testing.T) {
	cases := map[string]Category{
		"listFiles":   CategoryFast,
		"status":      CategoryFast,
		"analyzeCode": CategoryFast,
		"readFile":    CategoryFile,
		"writeFile":   CategoryFile,
		"searchFiles": CategoryNetwork,
		"webFetch":    CategoryNetwork,
		"compile":     CategoryHeavy,
	}
	for name, want := range cases {
		if got := classify(name); got != want {
			t.Errorf("classify(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExecuteBatch_UnknownTool(t *testing.T) {
	reg := tools.NewRegistry()
	e := New(reg, tools.ExecContext{})
	out := e.ExecuteBatch(context.Background(), []Invocation{{Tool: "doesNotExist"}})
	if len(out) != 1 || out[0].Result.Success {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if code, ok := orcherr.CodeOf(out[0].Err); !ok || code != orcherr.CodeUnknownTool {
		t.Fatalf("expected UnknownTool, got %v", out[0].Err)
	}
}

func TestExecuteBatch_CachesOnSuccessNotFailure(t *testing.T) {
	reg := tools.NewRegistry()
	okTool := &fakeTool{name: "statusCheck", success: true}
	failTool := &fakeTool{name: "statusFail", success: false}
	reg.Register(okTool)
	reg.Register(failTool)
	e := New(reg, tools.ExecContext{})

	invs := []Invocation{{Tool: "statusCheck"}, {Tool: "statusFail"}}
	e.ExecuteBatch(context.Background(), invs)
	e.ExecuteBatch(context.Background(), invs)

	if okTool.calls != 1 {
		t.Errorf("statusCheck calls = %d, want 1 (second run should hit cache)", okTool.calls)
	}
	if failTool.calls != 2 {
		t.Errorf("statusFail calls = %d, want 2 (failures must never be cached)", failTool.calls)
	}
}

func TestExecuteBatch_GroupsResultsByCategory(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&fakeTool{name: "readFile", success: true})
	reg.Register(&fakeTool{name: "listFiles", success: true})
	reg.Register(&fakeTool{name: "searchFiles", success: true})
	reg.Register(&fakeTool{name: "compile", success: true})
	e := New(reg, tools.ExecContext{})

	out := e.ExecuteBatch(context.Background(), []Invocation{
		{Tool: "compile"},
		{Tool: "readFile"},
		{Tool: "searchFiles"},
		{Tool: "listFiles"},
	})
	if len(out) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(out))
	}
	want := []string{"listFiles", "readFile", "searchFiles", "compile"}
	for i, name := range want {
		if out[i].Invocation.Tool != name {
			t.Errorf("position %d = %q, want %q (fast, file, network, heavy order)", i, out[i].Invocation.Tool, name)
		}
	}
}

func TestExecuteBatch_FileTierRespectsConcurrencyCap(t *testing.T) {
	reg := tools.NewRegistry()
	var concurrent, maxConcurrent int32
	tool := &blockingTool{name: "readFile", concurrent: &concurrent, maxConcurrent: &maxConcurrent}
	reg.Register(tool)
	e := New(reg, tools.ExecContext{}, WithFileCap(2))

	invs := make([]Invocation, 6)
	for i := range invs {
		invs[i] = Invocation{Tool: "readFile"}
	}
	e.ExecuteBatch(context.Background(), invs)

	if maxConcurrent > 2 {
		t.Errorf("max concurrent file-tier executions = %d, want <= 2", maxConcurrent)
	}
}

type blockingTool struct {
	name          string
	concurrent    *int32
	maxConcurrent *int32
}

func (b *blockingTool) Name() string          { return b.name }
func (b *blockingTool) Description() string   { return "" }
func (b *blockingTool) Timeout() time.Duration { return 0 }
func (b *blockingTool) Validate(args map[string]any) error     { return nil }
func (b *blockingTool) CanExecute(ctx tools.ExecContext) error { return nil }
func (b *blockingTool) Execute(ctx context.Context, args map[string]any) (orchtypes.ToolExecutionResult, error) {
	cur := atomic.AddInt32(b.concurrent, 1)
	defer atomic.AddInt32(b.concurrent, -1)
	for {
		m := atomic.LoadInt32(b.maxConcurrent)
		if cur <= m || atomic.CompareAndSwapInt32(b.maxConcurrent, m, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return orchtypes.ToolExecutionResult{ToolName: b.name, Success: true}, nil
}

func TestClearHistory(t *testing.T) {
	reg := tools.NewRegistry()
	tool := &fakeTool{name: "statusCheck", success: true}
	reg.Register(tool)
	e := New(reg, tools.ExecContext{})

	e.ExecuteBatch(context.Background(), []Invocation{{Tool: "statusCheck"}})
	e.ClearHistory()
	e.ExecuteBatch(context.Background(), []Invocation{{Tool: "statusCheck"}})

	if tool.calls != 2 {
		t.Errorf("calls = %d, want 2 (ClearHistory must force a re-execution)", tool.calls)
	}
}
