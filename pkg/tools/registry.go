package tools

import (
	"sort"

	"github.com/forgehq/forge/pkg/registry"
)

// Registry is the Tool Registry of C9, built directly on teacher's generic
// registry.BaseRegistry[T] (pkg/registry/registry.go) rather than a
// hand-rolled map — the same sync.RWMutex-guarded table teacher's own
// ToolRegistry wraps (pkg/tools/registry.go: `*registry.BaseRegistry[ToolEntry]`).
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

// Register adds t, replacing any prior tool registered under the same name.
// BaseRegistry.Register rejects duplicates outright, so a stale entry is
// removed first to give Register its replace-on-register contract.
func (r *Registry) Register(t Tool) {
	_ = r.base.Remove(t.Name())
	_ = r.base.Register(t.Name(), t)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	return r.base.Get(name)
}

// List returns every registered tool sorted by name, the ordering
// teacher's ListTools guarantees for deterministic listings.
func (r *Registry) List() []Tool {
	all := r.base.List()
	sort.Slice(all, func(i, j int) bool { return all[i].Name() < all[j].Name() })
	return all
}
