// Package provider defines the Adapter contract every model backend must
// satisfy (§4.1) along with the shared capability/status vocabulary the
// Router and Hybrid Executor consume. Concrete adapters live in the
// provider/openaicompat and provider/localmodel subpackages.
package provider

import (
	"context"
	"time"

	"github.com/forgehq/forge/pkg/orchtypes"
)

// Capabilities is what an adapter advertises about itself, independent of
// any one request. Capability Registry entries (pkg/capability) are seeded
// from these at startup.
type Capabilities struct {
	Strengths         []string
	OptimalFor        []string
	ResponseTimeClass string
	ContextWindow     int
	SupportsStreaming bool
	SupportsTools     bool
	MaxConcurrent     int
}

// Health is the live status snapshot returned by status().
type Health struct {
	Available     bool
	CurrentLoad   int
	AvgLatency    time.Duration
	SuccessRate   float64
	LastError     error
	LastCheckedAt time.Time
}

// Adapter is the contract every provider backend implements (§4.1). A
// transport, protocol, or provider-level failure MUST be returned as an
// *orcherr.Error (§7); adapters never silently substitute a different model.
type Adapter interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Request(ctx context.Context, req orchtypes.Request) (orchtypes.Response, error)
	Stream(ctx context.Context, req orchtypes.Request) (<-chan orchtypes.StreamToken, error)
	Capabilities() Capabilities
	Status() Health
}

// ModelLister is implemented by adapters that can enumerate locally
// available models (list_models() in §4.1 is optional).
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// DefaultAvailabilityTimeout bounds an adapter's is_available probe when
// the adapter doesn't override it (§4.1: "default 5 s").
const DefaultAvailabilityTimeout = 5 * time.Second
