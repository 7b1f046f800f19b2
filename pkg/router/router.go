// Package router implements the Router (C3): given a Request and a routing
// context, it selects a provider via a pluggable Strategy and constructs a
// fallback chain. Strategy selection by name mirrors how teacher's
// pkg/reasoning.CreateStrategy picks a ReasoningStrategy out of a small
// switch/registry by config string.
package router

import (
	"sort"
	"time"

	"github.com/forgehq/forge/pkg/capability"
	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

// Strategy is the name of a selection algorithm (§4.2).
type Strategy string

const (
	StrategyFastest     Strategy = "fastest"
	StrategyMostCapable  Strategy = "most-capable"
	StrategyBalanced     Strategy = "balanced"
	StrategyAdaptive     Strategy = "adaptive"
)

// Candidate is everything the router needs to know about one provider to
// score and order it.
type Candidate struct {
	Provider        string
	Model           string
	Available       bool
	CurrentLoad     int
	MaxLoad         int
	AvgResponseTime time.Duration
	SuccessRate     float64
	ConfiguredOrder int // position in the configured fallback chain; lower = earlier
}

// Context is the routing input alongside the Request itself (§4.2).
type Context struct {
	RequiresTools   bool
	Complexity      orchtypes.Complexity
	PrioritizeSpeed bool
	Model           string
	VoiceArchetype  string
	ForcedProvider  string
}

// scoreFunc ranks a candidate; higher is better.
type scoreFunc func(Candidate) float64

var strategyScores = map[Strategy]scoreFunc{
	StrategyFastest: func(c Candidate) float64 {
		if c.AvgResponseTime <= 0 {
			return 0
		}
		return -float64(c.AvgResponseTime)
	},
	StrategyMostCapable: func(c Candidate) float64 { return c.SuccessRate },
	StrategyBalanced: func(c Candidate) float64 {
		latencyPenalty := float64(c.AvgResponseTime) / float64(30*time.Second)
		return 0.6*c.SuccessRate + 0.4*(1-latencyPenalty)
	},
}

func resolveStrategy(strategy Strategy, ctx Context) Strategy {
	if strategy != StrategyAdaptive {
		return strategy
	}
	switch {
	case ctx.Complexity == orchtypes.ComplexityComplex:
		return StrategyMostCapable
	case ctx.PrioritizeSpeed || ctx.Complexity == orchtypes.ComplexitySimple:
		return StrategyFastest
	default:
		return StrategyBalanced
	}
}

// Router selects a provider for each Request and builds its fallback chain.
type Router struct {
	capabilities *capability.Registry
	strategy     Strategy
}

// New builds a Router against the given capability registry, defaulting to
// the adaptive strategy.
func New(capabilities *capability.Registry, strategy Strategy) *Router {
	if strategy == "" {
		strategy = StrategyAdaptive
	}
	return &Router{capabilities: capabilities, strategy: strategy}
}

// Route implements the §4.2 algorithm against a snapshot of candidates
// (typically built from each adapter's current provider.Health).
func (r *Router) Route(ctx Context, candidates []Candidate) (orchtypes.RoutingDecision, error) {
	if ctx.ForcedProvider != "" {
		return r.routeForced(ctx, candidates)
	}

	pool := candidates
	if ctx.RequiresTools {
		pool = r.filterToolCapable(pool, ctx.Model)
		if len(pool) == 0 {
			return orchtypes.RoutingDecision{}, orcherr.New(orcherr.CodeNoToolCapableProvider,
				"no registered provider/model combination supports tool calling for this request")
		}
	}

	pool = filterAvailable(pool)
	if len(pool) == 0 {
		return orchtypes.RoutingDecision{}, orcherr.New(orcherr.CodeProviderUnavailable,
			"no available provider satisfies the routing constraints")
	}

	effective := resolveStrategy(r.strategy, ctx)
	score := strategyScores[effective]
	if score == nil {
		score = strategyScores[StrategyBalanced]
	}

	ordered := sortByScore(pool, score)
	return buildDecision(ordered, effective), nil
}

func (r *Router) routeForced(ctx Context, candidates []Candidate) (orchtypes.RoutingDecision, error) {
	if ctx.RequiresTools && !r.capabilities.SupportsTools(ctx.ForcedProvider, ctx.Model) {
		return orchtypes.RoutingDecision{}, orcherr.New(orcherr.CodeNoToolCapableProvider,
			"forced provider "+ctx.ForcedProvider+" does not support tool calling for this request")
	}
	for _, c := range candidates {
		if c.Provider == ctx.ForcedProvider {
			return orchtypes.RoutingDecision{
				SelectedProvider: c.Provider,
				Confidence:       1.0,
				Reasoning:        "forced provider, scoring skipped",
				FallbackChain:    []string{c.Provider},
			}, nil
		}
	}
	return orchtypes.RoutingDecision{}, orcherr.New(orcherr.CodeProviderUnavailable,
		"forced provider "+ctx.ForcedProvider+" is not a known candidate")
}

func (r *Router) filterToolCapable(candidates []Candidate, model string) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		m := model
		if m == "" {
			m = c.Model
		}
		if r.capabilities.SupportsTools(c.Provider, m) {
			out = append(out, c)
		}
	}
	return out
}

func filterAvailable(candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Available && (c.MaxLoad <= 0 || c.CurrentLoad < c.MaxLoad) {
			out = append(out, c)
		}
	}
	return out
}

// sortByScore orders candidates by descending score, tie-broken by
// ConfiguredOrder then provider name ascending (§4.2 invariant 5), the same
// sort.SliceStable-over-a-composite-key idiom teacher's tool registry uses
// to produce a deterministic ListTools order.
func sortByScore(candidates []Candidate, score scoreFunc) []Candidate {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)

	sort.SliceStable(ordered, func(i, j int) bool {
		si, sj := score(ordered[i]), score(ordered[j])
		if si != sj {
			return si > sj
		}
		if ordered[i].ConfiguredOrder != ordered[j].ConfiguredOrder {
			return ordered[i].ConfiguredOrder < ordered[j].ConfiguredOrder
		}
		return ordered[i].Provider < ordered[j].Provider
	})
	return ordered
}

func buildDecision(ordered []Candidate, strategy Strategy) orchtypes.RoutingDecision {
	chain := make([]string, 0, len(ordered))
	for _, c := range ordered {
		chain = append(chain, c.Provider)
	}
	return orchtypes.RoutingDecision{
		SelectedProvider:      chain[0],
		Confidence:            confidenceOf(ordered[0]),
		Reasoning:             "selected via " + string(strategy) + " strategy",
		FallbackChain:         chain,
		EstimatedResponseTime: ordered[0].AvgResponseTime,
	}
}

func confidenceOf(c Candidate) float64 {
	if c.SuccessRate > 0 {
		return c.SuccessRate
	}
	return 0.5
}
