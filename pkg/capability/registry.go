// Package capability holds the static/dynamic table of (provider, model)
// capability tuples the Router consults before scoring candidates (§4.1).
// It is immutable after startup except through an explicit Reload call —
// there is no ambient mutation path, per DESIGN NOTES §9.
package capability

import (
	"sync"
	"time"
)

// ResponseTimeClass buckets a provider's typical latency for use in
// confidence-derivation heuristics (§4.3).
type ResponseTimeClass string

const (
	ClassFast     ResponseTimeClass = "fast"
	ClassStandard ResponseTimeClass = "standard"
	ClassSlow     ResponseTimeClass = "slow"
)

// Entry describes what one (provider, model) pair can do.
type Entry struct {
	Provider          string
	Model             string
	Strengths         []string
	OptimalFor        []string
	ResponseTimeClass ResponseTimeClass
	ContextWindow     int
	SupportsStreaming bool
	SupportsTools     bool
	MaxConcurrent     int
}

func key(provider, model string) string { return provider + "::" + model }

// Registry is a read-mostly table of Entry values keyed by (provider, model).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	loadAt  time.Time
}

// New builds a Registry seeded with the given entries.
func New(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		r.entries[key(e.Provider, e.Model)] = e
	}
	r.loadAt = time.Now()
	return r
}

// Reload atomically replaces the entire table. This is the one sanctioned
// mutation path after startup (§9).
func (r *Registry) Reload(entries []Entry) {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		next[key(e.Provider, e.Model)] = e
	}
	r.mu.Lock()
	r.entries = next
	r.loadAt = time.Now()
	r.mu.Unlock()
}

// Lookup returns the capability entry for an exact (provider, model) pair.
func (r *Registry) Lookup(provider, model string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[key(provider, model)]
	return e, ok
}

// ForProvider returns every entry registered for provider, regardless of
// model, in undefined order.
func (r *Registry) ForProvider(provider string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.Provider == provider {
			out = append(out, e)
		}
	}
	return out
}

// SupportsTools implements §4.1's tool-capability rule: when model is empty
// but requiresTools is true, a provider counts as tool-capable if it has
// *any* registered model entry that supports tools (the "adapter that
// auto-selects a tool-capable model" case); otherwise it requires an exact
// (provider, model) match with SupportsTools set.
func (r *Registry) SupportsTools(provider, model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if model == "" {
		for _, e := range r.entries {
			if e.Provider == provider && e.SupportsTools {
				return true
			}
		}
		return false
	}
	e, ok := r.entries[key(provider, model)]
	return ok && e.SupportsTools
}
