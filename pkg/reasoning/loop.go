package reasoning

import (
	"context"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// Phase is one state of the Planning/Acting/Observing/Terminal machine.
type Phase string

const (
	PhasePlanning  Phase = "planning"
	PhaseActing    Phase = "acting"
	PhaseObserving Phase = "observing"
	PhaseTerminal  Phase = "terminal"
)

const (
	defaultMaxSteps           = 20
	maxConsecutiveParseFails  = 3
	observationTruncateLength = 1000
)

// ModelCaller produces the next raw model output given the accumulated
// context so far.
type ModelCaller func(ctx context.Context, transcript string) (string, error)

// ToolExecutor dispatches one parsed Action and returns its observation.
type ToolExecutor func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error)

// Config bounds one Loop run.
type Config struct {
	MaxSteps int
}

// Loop drives the ReAct state machine to completion.
type Loop struct {
	cfg     Config
	call    ModelCaller
	execute ToolExecutor
}

// New builds a Loop.
func New(cfg Config, call ModelCaller, execute ToolExecutor) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	return &Loop{cfg: cfg, call: call, execute: execute}
}

// Outcome is the final result of a Run.
type Outcome struct {
	Answer string
	Steps  []orchtypes.ReasoningStep
}

// Run executes the Planning -> Acting -> Observing cycle until a
// final_answer, the step budget is reached, or an unrecoverable parsing
// failure forces termination.
func (l *Loop) Run(ctx context.Context, query string) (Outcome, error) {
	transcript := query
	var steps []orchtypes.ReasoningStep
	var lastCall string
	consecutiveParseFailures := 0

	for step := 0; step < l.cfg.MaxSteps; step++ {
		raw, err := l.call(ctx, transcript)
		if err != nil {
			return Outcome{Steps: steps}, orcherr.Wrap(orcherr.CodeProviderUnavailable, "model call failed during reasoning", err)
		}

		action, ok := ParseAction(raw)
		if !ok {
			consecutiveParseFailures++
			if consecutiveParseFailures >= maxConsecutiveParseFails {
				return Outcome{Steps: steps}, orcherr.New(orcherr.CodeReasoningParseFailure,
					"three consecutive unparseable model outputs")
			}
			transcript += "\n[system] Could not parse your last output. Respond with a JSON object containing thought, tool, and toolInput.\n"
			continue
		}
		consecutiveParseFailures = 0

		if action.Tool == FinalAnswerTool {
			return Outcome{Answer: action.Answer, Steps: steps}, nil
		}

		dupKey := action.Tool + ":" + orchtypes.CanonicalizeArgs(action.ToolInput)
		if dupKey == lastCall {
			return Outcome{Steps: steps}, orcherr.New(orcherr.CodeToolExecutionError,
				"duplicate guard: refused to re-execute the same tool call twice in a row")
		}
		lastCall = dupKey

		result, execErr := l.execute(ctx, action.Tool, action.ToolInput)
		if execErr != nil {
			result = orchtypes.ToolExecutionResult{ToolName: action.Tool, Success: false, Error: execErr.Error(), Timestamp: time.Now()}
		}

		forwarded, _ := orchtypes.TruncateObservation(observationOf(result), observationTruncateLength)

		steps = append(steps, orchtypes.ReasoningStep{
			Thought:     action.Thought,
			Tool:        action.Tool,
			ToolInput:   action.ToolInput,
			Observation: forwarded,
			Timestamp:   time.Now(),
		})

		transcript += "\n[observation] " + forwarded + "\n"
	}

	return Outcome{Steps: steps}, orcherr.New(orcherr.CodeReasoningBudgetExceeded, "step budget reached without a final answer")
}

func observationOf(result orchtypes.ToolExecutionResult) string {
	if result.Success {
		return result.Result
	}
	return "error: " + result.Error
}
