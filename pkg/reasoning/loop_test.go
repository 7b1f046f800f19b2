package reasoning

import (
	"context"
	"strings"
	"testing"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

func TestRun_TerminatesOnFinalAnswer(t *testing.T) {
	call := func(ctx context.Context, transcript string) (string, error) {
		return `{"tool":"final_answer","answer":"42"}`, nil
	}
	l := New(Config{}, call, nil)

	outcome, err := l.Run(context.Background(), "what is the answer?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Answer != "42" {
		t.Errorf("Answer = %q, want 42", outcome.Answer)
	}
}

func TestRun_ExecutesToolThenAnswers(t *testing.T) {
	calls := 0
	call := func(ctx context.Context, transcript string) (string, error) {
		calls++
		if calls == 1 {
			return `{"tool":"listFiles","toolInput":{"path":"."}}`, nil
		}
		return `{"tool":"final_answer","answer":"done"}`, nil
	}
	execute := func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error) {
		return orchtypes.ToolExecutionResult{ToolName: tool, Success: true, Result: "a.go\nb.go"}, nil
	}
	l := New(Config{}, call, execute)

	outcome, err := l.Run(context.Background(), "list the files")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Answer != "done" {
		t.Errorf("Answer = %q, want done", outcome.Answer)
	}
	if len(outcome.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(outcome.Steps))
	}
}

func TestRun_DuplicateGuardTerminates(t *testing.T) {
	call := func(ctx context.Context, transcript string) (string, error) {
		return `{"tool":"listFiles","toolInput":{"path":"."}}`, nil
	}
	execute := func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error) {
		return orchtypes.ToolExecutionResult{ToolName: tool, Success: true, Result: "same every time"}, nil
	}
	l := New(Config{}, call, execute)

	_, err := l.Run(context.Background(), "loop forever")
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeToolExecutionError {
		t.Fatalf("expected duplicate-guard termination, got %v", err)
	}
}

func TestRun_ThreeConsecutiveParseFailures(t *testing.T) {
	call := func(ctx context.Context, transcript string) (string, error) {
		return "   ", nil
	}
	l := New(Config{}, call, nil)

	_, err := l.Run(context.Background(), "garbage in")
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeReasoningParseFailure {
		t.Fatalf("expected ReasoningParseFailure after 3 consecutive failures, got %v", err)
	}
}

func TestRun_StepBudgetExceeded(t *testing.T) {
	step := 0
	call := func(ctx context.Context, transcript string) (string, error) {
		step++
		// A distinct path each step keeps the duplicate guard from firing.
		return `{"tool":"readFile","toolInput":{"path":"x` + string(rune('a'+step)) + `"}}`, nil
	}
	n := 0
	execute := func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error) {
		n++
		return orchtypes.ToolExecutionResult{ToolName: tool, Success: true, Result: "content " + string(rune('a'+n%20))}, nil
	}
	l := New(Config{MaxSteps: 3}, call, execute)

	_, err := l.Run(context.Background(), "keep reading")
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeReasoningBudgetExceeded {
		t.Fatalf("expected ReasoningBudgetExceeded, got %v", err)
	}
}

func TestRun_TruncatesLongObservation(t *testing.T) {
	call := func() func(ctx context.Context, transcript string) (string, error) {
		calls := 0
		return func(ctx context.Context, transcript string) (string, error) {
			calls++
			if calls == 1 {
				return `{"tool":"readFile","toolInput":{"path":"big.txt"}}`, nil
			}
			return `{"tool":"final_answer","answer":"ok"}`, nil
		}
	}()
	execute := func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error) {
		return orchtypes.ToolExecutionResult{ToolName: tool, Success: true, Result: strings.Repeat("x", 2000)}, nil
	}
	l := New(Config{}, call, execute)

	outcome, err := l.Run(context.Background(), "read the big file")
	if err != nil {
		t.Fatal(err)
	}
	if len(outcome.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(outcome.Steps))
	}
	if !strings.Contains(outcome.Steps[0].Observation, "truncated") {
		t.Error("expected long observation to be truncated with an ellipsis marker")
	}
}
