// Package server wires the orchestration core (router, hybrid executor,
// request processor, ReAct loop, async tool executor, sub-agent isolation)
// into one Engine and exposes it over a loopback HTTP surface (§6.2),
// grounded on teacher's pkg/server (Options-constructed Server, lifecycle
// split into New/Start/Stop/Wait) generalized from an A2A/gRPC transport
// stack down to the three endpoints this spec calls for.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/forgehq/forge/pkg/capability"
	"github.com/forgehq/forge/pkg/config"
	"github.com/forgehq/forge/pkg/eventbus"
	"github.com/forgehq/forge/pkg/executor"
	"github.com/forgehq/forge/pkg/isolation"
	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/provider"
	"github.com/forgehq/forge/pkg/reasoning"
	"github.com/forgehq/forge/pkg/request"
	"github.com/forgehq/forge/pkg/router"
	"github.com/forgehq/forge/pkg/stream"
	"github.com/forgehq/forge/pkg/tools"
	"github.com/forgehq/forge/pkg/toolexec"
)

// Engine is the single assembled orchestrator: one request in, one Response
// (or token stream) out, driving every component named in §2's table.
type Engine struct {
	cfg          *config.Config
	adapters     map[string]provider.Adapter
	executor     *executor.Executor
	router       *router.Router
	capabilities *capability.Registry
	processor    *request.Processor
	toolExec     *toolexec.Executor
	toolRegistry *tools.Registry
	isolation    *isolation.Manager
	events       *eventbus.Bus
}

// Events returns the Engine's event bus, so a caller (typically cmd/forge)
// can Subscribe observers to routing decisions, tool lifecycle, stream
// lifecycle and isolation-violation events (§4.11) before traffic starts.
func (e *Engine) Events() *eventbus.Bus {
	return e.events
}

// NewEngine assembles an Engine from already-constructed leaf components.
func NewEngine(cfg *config.Config, adapters []provider.Adapter, capabilities *capability.Registry, toolRegistry *tools.Registry) *Engine {
	adapterMap := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		adapterMap[a.Name()] = a
	}

	// ContextWindow is left at 0 (trimming disabled) here, so NewProcessor's
	// only error path (token counter construction) can't trigger.
	proc, _ := request.NewProcessor(request.ProcessorConfig{
		MaxInputLength: cfg.Security.MaxInputLength,
		AllowedRoots:   cfg.Security.AllowedPaths,
	})

	execCtx := execContextFor(cfg.Security.Level)
	toolExec := toolexec.New(toolRegistry, execCtx,
		toolexec.WithFileCap(2),
		toolexec.WithDefaultTimeout(time.Duration(cfg.Search.DefaultTimeoutMS)*time.Millisecond),
	)

	return &Engine{
		cfg:          cfg,
		adapters:     adapterMap,
		executor:     executor.New(adapters...),
		router:       router.New(capabilities, router.Strategy(cfg.Router.Strategy)),
		capabilities: capabilities,
		processor:    proc,
		toolExec:     toolExec,
		toolRegistry: toolRegistry,
		isolation:    isolation.NewManager(),
		events:       eventbus.New(nil),
	}
}

// execContextFor maps the ambient security.level option onto the tool
// permission envelope (§6.4, §4.7's can_execute gate).
func execContextFor(level string) tools.ExecContext {
	switch level {
	case "low":
		return tools.ExecContext{SecurityLevel: tools.SecurityMinimal, Permissions: map[tools.Permission]bool{
			tools.PermissionFilesystemRead: true, tools.PermissionFilesystemWrite: true,
			tools.PermissionNetwork: true, tools.PermissionSubprocess: true,
		}}
	case "high":
		return tools.ExecContext{SecurityLevel: tools.SecurityStrict, Permissions: map[tools.Permission]bool{
			tools.PermissionFilesystemRead: true,
		}}
	case "maximum":
		return tools.ExecContext{SecurityLevel: tools.SecurityMaximum, Permissions: map[tools.Permission]bool{}}
	default: // "medium"
		return tools.ExecContext{SecurityLevel: tools.SecurityStandard, Permissions: map[tools.Permission]bool{
			tools.PermissionFilesystemRead: true, tools.PermissionFilesystemWrite: true,
		}}
	}
}

func isolationLevelFor(name string) isolation.Level {
	switch name {
	case "minimal":
		return isolation.LevelMinimal
	case "strict":
		return isolation.LevelStrict
	case "maximum":
		return isolation.LevelMaximum
	default:
		return isolation.LevelStandard
	}
}

// candidates snapshots every known adapter's live status into router
// Candidates, the input Route needs alongside the routing Context.
func (e *Engine) candidates() []router.Candidate {
	out := make([]router.Candidate, 0, len(e.adapters))
	for name, a := range e.adapters {
		h := a.Status()
		out = append(out, router.Candidate{
			Provider:        name,
			Available:       h.Available,
			CurrentLoad:     h.CurrentLoad,
			MaxLoad:         a.Capabilities().MaxConcurrent,
			AvgResponseTime: h.AvgLatency,
			SuccessRate:     h.SuccessRate,
		})
	}
	return out
}

func routerContextFor(req orchtypes.Request) router.Context {
	return router.Context{
		RequiresTools:  len(req.Tools) > 0,
		Model:          req.Model,
		ForcedProvider: req.Provider,
	}
}

// executorOptions translates a RoutingDecision plus the configured executor
// knobs (§6.4) into the Options Execute expects.
func (e *Engine) executorOptions(decision orchtypes.RoutingDecision, forced string) executor.Options {
	if forced != "" {
		return executor.Options{Mode: executor.ModeForced, ForcedProvider: forced, FallbackChain: decision.FallbackChain, AllowFallback: true, MaxRetries: e.cfg.Router.MaxRetries}
	}
	return executor.Options{
		Mode:                executor.ModeHybrid,
		FallbackChain:       decision.FallbackChain,
		MaxRetries:          e.cfg.Router.MaxRetries,
		EscalationThreshold: e.cfg.Executor.Hybrid.EscalationThreshold,
		EscalationProvider:  escalationCandidate(decision),
	}
}

// escalationCandidate picks the next-best provider in the fallback chain to
// consult when the primary response falls below the confidence threshold.
func escalationCandidate(decision orchtypes.RoutingDecision) string {
	if len(decision.FallbackChain) > 1 {
		return decision.FallbackChain[1]
	}
	return ""
}

// HandleRequest runs the non-streaming pipeline: process -> route ->
// execute, escalating into the ReAct loop (pkg/reasoning) whenever the
// request carries tools.
func (e *Engine) HandleRequest(ctx context.Context, req orchtypes.Request) (orchtypes.Response, error) {
	accepted, err := e.processor.Process(req)
	if err != nil {
		return orchtypes.Response{}, err
	}

	decision, err := e.router.Route(routerContextFor(accepted), e.candidates())
	if err != nil {
		return orchtypes.Response{}, err
	}
	e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicRoutingDecision, Payload: decision})
	opts := e.executorOptions(decision, accepted.Provider)

	if len(accepted.Tools) == 0 {
		result, err := e.executor.Execute(ctx, accepted, opts)
		if err != nil {
			return orchtypes.Response{}, err
		}
		return result.Response, nil
	}

	return e.runReasoningLoop(ctx, accepted, opts)
}

// runReasoningLoop drives pkg/reasoning.Loop, wiring its ModelCaller back
// through the same router decision + executor options every step, and its
// ToolExecutor through the async tool executor under an isolation session
// scoped to the request's configured security level.
func (e *Engine) runReasoningLoop(ctx context.Context, req orchtypes.Request, opts executor.Options) (orchtypes.Response, error) {
	level := isolationLevelFor(e.cfg.Isolation.DefaultLevel)
	session := e.isolation.Create(req.ID, level)
	defer e.isolation.Terminate(req.ID)

	caller := func(ctx context.Context, transcript string) (string, error) {
		stepReq := req
		stepReq.Messages = append(append([]orchtypes.Message{}, req.Messages...), orchtypes.Message{Role: orchtypes.RoleUser, Content: transcript})
		result, err := e.executor.Execute(ctx, stepReq, opts)
		if err != nil {
			return "", err
		}
		return result.Response.Content, nil
	}

	toolExecutor := func(ctx context.Context, tool string, input map[string]any) (orchtypes.ToolExecutionResult, error) {
		if !session.ValidateOperation(isolation.OpCompute) {
			e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicIsolationViolation, Payload: map[string]any{
				"request_id": req.ID, "tool": tool,
			}})
			return orchtypes.ToolExecutionResult{}, orcherr.New(orcherr.CodeIsolationViolation,
				fmt.Sprintf("tool %q denied: isolation budget exceeded for session %s", tool, req.ID))
		}
		session.EnforceResourceLimits()
		e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicToolStarted, Payload: map[string]any{"request_id": req.ID, "tool": tool}})
		outcomes := e.toolExec.ExecuteBatch(ctx, []toolexec.Invocation{{Tool: tool, Args: input}})
		if len(outcomes) == 0 {
			return orchtypes.ToolExecutionResult{}, orcherr.New(orcherr.CodeToolExecutionError, "tool batch returned no outcome")
		}
		e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicToolCompleted, Payload: map[string]any{
			"request_id": req.ID, "tool": tool, "success": outcomes[0].Err == nil,
		}})
		return outcomes[0].Result, outcomes[0].Err
	}

	loop := reasoning.New(reasoning.Config{}, caller, toolExecutor)
	outcome, err := loop.Run(ctx, req.Prompt)
	if err != nil {
		return orchtypes.Response{}, err
	}

	return orchtypes.Response{
		ID:           orchtypes.NewRequestID(),
		Content:      outcome.Answer,
		Provider:     opts.ForcedProvider,
		FinishReason: orchtypes.FinishStop,
	}, nil
}

// HandleStream runs the streaming pipeline (§4.5): route once, call the
// selected adapter's Stream directly (hybrid escalation does not apply to
// an in-flight stream), and forward through pkg/stream.Pipe.
func (e *Engine) HandleStream(ctx context.Context, req orchtypes.Request) (<-chan orchtypes.StreamToken, error) {
	accepted, err := e.processor.Process(req)
	if err != nil {
		return nil, err
	}

	decision, err := e.router.Route(routerContextFor(accepted), e.candidates())
	if err != nil {
		return nil, err
	}
	e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicRoutingDecision, Payload: decision})

	name := accepted.Provider
	if name == "" {
		name = decision.SelectedProvider
	}
	adapter, ok := e.adapters[name]
	if !ok {
		return nil, orcherr.New(orcherr.CodeProviderUnavailable, "selected provider "+name+" is not registered")
	}

	in, err := adapter.Stream(ctx, accepted)
	if err != nil {
		return nil, err
	}
	e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicStreamStarted, Payload: map[string]any{"request_id": accepted.ID, "provider": name}})
	return e.tapStream(ctx, accepted.ID, stream.Pipe(ctx, in)), nil
}

// tapStream republishes every token piped by pkg/stream onto the event bus
// (TopicStreamToken, then TopicStreamCompleted on the terminal token)
// without altering what the HTTP handler forwards to the client.
func (e *Engine) tapStream(ctx context.Context, requestID string, in <-chan orchtypes.StreamToken) <-chan orchtypes.StreamToken {
	out := make(chan orchtypes.StreamToken, cap(in))
	go func() {
		defer close(out)
		for tok := range in {
			e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicStreamToken, Payload: map[string]any{"request_id": requestID, "index": tok.Index}})
			out <- tok
			if tok.IsComplete {
				e.events.Publish(ctx, eventbus.Event{Topic: eventbus.TopicStreamCompleted, Payload: map[string]any{"request_id": requestID, "cancelled": tok.Cancelled}})
			}
		}
	}()
	return out
}

// Health reports per-provider availability for GET /health (§6.2).
func (e *Engine) Health(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(e.adapters))
	for name, a := range e.adapters {
		out[name] = a.IsAvailable(ctx)
	}
	return out
}

func (e *Engine) healthy(ctx context.Context) bool {
	for _, available := range e.Health(ctx) {
		if available {
			return true
		}
	}
	return len(e.adapters) == 0
}
