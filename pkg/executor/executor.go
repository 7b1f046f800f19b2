// Package executor implements the Hybrid Executor (C4): it drives one or
// more provider.Adapter calls per Request according to a Mode, accounts for
// per-provider load, and derives a confidence score when an adapter does
// not supply one. The per-attempt failure budget/cooldown is grounded on
// teacher's pkg/ratelimit/store_memory.go sliding-window counter idiom,
// generalized from rate-limit windows to a consecutive-failure cooldown.
package executor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/provider"
)

// Mode selects how the executor dispatches a Request (§4.3).
type Mode string

const (
	ModeDirect Mode = "direct"
	ModeForced Mode = "forced"
	ModeHybrid Mode = "hybrid"
)

const (
	defaultMaxRetries          = 2
	defaultEscalationThreshold = 0.7
	failuresBeforeCooldown     = 3
	defaultCooldownInterval    = 30 * time.Second
)

// Options configures a single Execute call.
type Options struct {
	Mode                Mode
	FallbackChain       []string // ordered provider names; index 0 is primary
	ForcedProvider      string
	AllowFallback       bool // only consulted in ModeForced
	MaxRetries          int
	EscalationThreshold float64
	EscalationProvider  string // capable provider consulted in ModeHybrid
}

// Result is the outcome of Execute, including whether the hybrid escalation
// path was taken.
type Result struct {
	Response   orchtypes.Response
	Provider   string
	Escalated  bool
	Attempts   int
}

type providerState struct {
	mu                  sync.Mutex
	currentLoad         int
	consecutiveFailures int
	cooldownUntil       time.Time
}

// Executor dispatches requests against a set of named adapters.
type Executor struct {
	adapters map[string]provider.Adapter
	states   map[string]*providerState
	mu       sync.RWMutex
}

// New builds an Executor over the given adapters, keyed by Name().
func New(adapters ...provider.Adapter) *Executor {
	e := &Executor{
		adapters: make(map[string]provider.Adapter, len(adapters)),
		states:   make(map[string]*providerState, len(adapters)),
	}
	for _, a := range adapters {
		e.adapters[a.Name()] = a
		e.states[a.Name()] = &providerState{}
	}
	return e
}

func (e *Executor) stateFor(name string) *providerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.states[name]
	if !ok {
		s = &providerState{}
		e.states[name] = s
	}
	return s
}

// Available reports whether name is usable right now: known to the
// executor and not within its failure-budget cooldown window.
func (e *Executor) Available(name string) bool {
	e.mu.RLock()
	_, known := e.adapters[name]
	e.mu.RUnlock()
	if !known {
		return false
	}
	s := e.stateFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.cooldownUntil)
}

func (e *Executor) trackStart(name string) {
	s := e.stateFor(name)
	s.mu.Lock()
	s.currentLoad++
	s.mu.Unlock()
}

// trackEnd decrements load unconditionally — including on cancellation or
// panic recovery by the caller — and updates the consecutive-failure
// cooldown counter (§4.3: "Load counters MUST be decremented even on
// exceptions and cancellations").
func (e *Executor) trackEnd(name string, err error) {
	s := e.stateFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLoad--
	if s.currentLoad < 0 {
		s.currentLoad = 0
	}
	if err != nil {
		s.consecutiveFailures++
		if s.consecutiveFailures >= failuresBeforeCooldown {
			s.cooldownUntil = time.Now().Add(defaultCooldownInterval)
		}
	} else {
		s.consecutiveFailures = 0
		s.cooldownUntil = time.Time{}
	}
}

// CurrentLoad reports the in-flight attempt count for name.
func (e *Executor) CurrentLoad(name string) int {
	s := e.stateFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLoad
}

func (e *Executor) attempt(ctx context.Context, name string, req orchtypes.Request) (orchtypes.Response, error) {
	e.mu.RLock()
	adapter, ok := e.adapters[name]
	e.mu.RUnlock()
	if !ok {
		return orchtypes.Response{}, orcherr.New(orcherr.CodeProviderUnavailable, "unknown provider: "+name)
	}

	e.trackStart(name)
	start := time.Now()
	panicked := true
	defer func() {
		if panicked {
			e.trackEnd(name, orcherr.New(orcherr.CodeProviderUnavailable, name+" panicked during Request"))
		}
	}()
	resp, err := adapter.Request(ctx, req)
	panicked = false
	e.trackEnd(name, err)

	if err == nil {
		resp.ResponseTime = time.Since(start)
		if resp.Confidence == 0 {
			resp.Confidence = deriveConfidence(resp, adapter.Capabilities().ResponseTimeClass)
		}
	}
	return resp, err
}

// Execute dispatches req according to opts.Mode.
func (e *Executor) Execute(ctx context.Context, req orchtypes.Request, opts Options) (Result, error) {
	switch opts.Mode {
	case ModeForced:
		return e.executeForced(ctx, req, opts)
	case ModeHybrid:
		return e.executeHybrid(ctx, req, opts)
	default:
		return e.executeDirect(ctx, req, opts)
	}
}

func (e *Executor) executeDirect(ctx context.Context, req orchtypes.Request, opts Options) (Result, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	chain := opts.FallbackChain
	if len(chain) == 0 {
		return Result{}, orcherr.New(orcherr.CodeProviderUnavailable, "direct execution requires a non-empty fallback chain")
	}

	var lastErr error
	attempts := 0
	for i, name := range chain {
		if i > maxRetries {
			break
		}
		if !e.Available(name) {
			lastErr = orcherr.New(orcherr.CodeProviderUnavailable, name+" is in cooldown")
			continue
		}
		attempts++
		resp, err := e.attempt(ctx, name, req)
		if err == nil {
			return Result{Response: resp, Provider: name, Attempts: attempts}, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = orcherr.New(orcherr.CodeProviderUnavailable, "no provider in the fallback chain was available")
	}
	return Result{Attempts: attempts}, lastErr
}

func (e *Executor) executeForced(ctx context.Context, req orchtypes.Request, opts Options) (Result, error) {
	resp, err := e.attempt(ctx, opts.ForcedProvider, req)
	if err == nil {
		return Result{Response: resp, Provider: opts.ForcedProvider, Attempts: 1}, nil
	}
	if !opts.AllowFallback {
		return Result{Attempts: 1}, err
	}
	fallbackOpts := opts
	fallbackOpts.Mode = ModeDirect
	fallbackOpts.FallbackChain = removeFirst(opts.FallbackChain, opts.ForcedProvider)
	result, fbErr := e.executeDirect(ctx, req, fallbackOpts)
	result.Attempts++
	return result, fbErr
}

func (e *Executor) executeHybrid(ctx context.Context, req orchtypes.Request, opts Options) (Result, error) {
	threshold := opts.EscalationThreshold
	if threshold <= 0 {
		threshold = defaultEscalationThreshold
	}

	first, err := e.executeDirect(ctx, req, withMode(opts, ModeDirect))
	if err != nil {
		return first, err
	}
	if first.Response.Confidence >= threshold || opts.EscalationProvider == "" {
		return first, nil
	}

	escalated, escErr := e.attempt(ctx, opts.EscalationProvider, req)
	if escErr != nil {
		// Escalation failed: retain the first response, mark not escalated (§4.3).
		first.Escalated = false
		return first, nil
	}
	return Result{Response: escalated, Provider: opts.EscalationProvider, Escalated: true, Attempts: first.Attempts + 1}, nil
}

func withMode(opts Options, mode Mode) Options {
	opts.Mode = mode
	return opts
}

func removeFirst(chain []string, name string) []string {
	out := make([]string, 0, len(chain))
	for _, c := range chain {
		if c != name {
			out = append(out, c)
		}
	}
	return out
}

// deriveConfidence implements the §4.3 heuristic for adapters that don't
// supply their own confidence score.
func deriveConfidence(resp orchtypes.Response, responseTimeClass string) float64 {
	score := 0.8

	if len(resp.Content) < 10 {
		score -= 0.3
	}
	if strings.Contains(strings.ToLower(resp.Content), "error") {
		score -= 0.2
	}
	if isExcessiveLatency(resp.ResponseTime, responseTimeClass) {
		score -= 0.2
	}
	if strings.Contains(resp.Content, "```") {
		score += 0.1
	}
	if responseTimeClass == "fast" && resp.ResponseTime < time.Second {
		score += 0.1
	}

	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func isExcessiveLatency(d time.Duration, class string) bool {
	switch class {
	case "fast":
		return d > 3*time.Second
	case "slow":
		return d > 30*time.Second
	default:
		return d > 10*time.Second
	}
}
