package router

import (
	"testing"
	"time"

	"github.com/forgehq/forge/pkg/capability"
	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

func newTestRegistry() *capability.Registry {
	return capability.New(
		capability.Entry{Provider: "fast-local", Model: "qwen2.5-coder", SupportsTools: true},
		capability.Entry{Provider: "capable-remote", Model: "big-model", SupportsTools: true},
		capability.Entry{Provider: "no-tools", Model: "plain", SupportsTools: false},
	)
}

func TestRoute_Fastest(t *testing.T) {
	r := New(newTestRegistry(), StrategyFastest)
	candidates := []Candidate{
		{Provider: "capable-remote", Model: "big-model", Available: true, AvgResponseTime: 2 * time.Second, SuccessRate: 0.95},
		{Provider: "fast-local", Model: "qwen2.5-coder", Available: true, AvgResponseTime: 200 * time.Millisecond, SuccessRate: 0.9},
	}
	decision, err := r.Route(Context{}, candidates)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if decision.SelectedProvider != "fast-local" {
		t.Errorf("SelectedProvider = %q, want fast-local", decision.SelectedProvider)
	}
}

func TestRoute_MostCapable(t *testing.T) {
	r := New(newTestRegistry(), StrategyMostCapable)
	candidates := []Candidate{
		{Provider: "fast-local", Available: true, SuccessRate: 0.8},
		{Provider: "capable-remote", Available: true, SuccessRate: 0.95},
	}
	decision, err := r.Route(Context{}, candidates)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if decision.SelectedProvider != "capable-remote" {
		t.Errorf("SelectedProvider = %q, want capable-remote", decision.SelectedProvider)
	}
}

func TestRoute_RequiresTools_NoneCapable(t *testing.T) {
	r := New(newTestRegistry(), StrategyBalanced)
	candidates := []Candidate{
		{Provider: "no-tools", Model: "plain", Available: true, SuccessRate: 0.9},
	}
	_, err := r.Route(Context{RequiresTools: true}, candidates)
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeNoToolCapableProvider {
		t.Fatalf("expected NoToolCapableProvider, got %v", err)
	}
}

func TestRoute_UnavailableNeverSelected(t *testing.T) {
	r := New(newTestRegistry(), StrategyMostCapable)
	candidates := []Candidate{
		{Provider: "capable-remote", Available: false, SuccessRate: 0.99},
		{Provider: "fast-local", Available: true, SuccessRate: 0.5},
	}
	decision, err := r.Route(Context{}, candidates)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if decision.SelectedProvider != "fast-local" {
		t.Errorf("unavailable provider must never be selected, got %q", decision.SelectedProvider)
	}
	for _, p := range decision.FallbackChain {
		if p == "capable-remote" {
			t.Fatal("unavailable provider must not appear in fallback chain")
		}
	}
}

func TestRoute_AllUnavailable(t *testing.T) {
	r := New(newTestRegistry(), StrategyBalanced)
	candidates := []Candidate{{Provider: "fast-local", Available: false}}
	if _, err := r.Route(Context{}, candidates); err == nil {
		t.Fatal("expected error when no candidate is available")
	}
}

func TestRoute_Adaptive(t *testing.T) {
	r := New(newTestRegistry(), StrategyAdaptive)
	candidates := []Candidate{
		{Provider: "fast-local", Available: true, AvgResponseTime: 100 * time.Millisecond, SuccessRate: 0.7},
		{Provider: "capable-remote", Available: true, AvgResponseTime: 3 * time.Second, SuccessRate: 0.99},
	}

	decision, err := r.Route(Context{Complexity: orchtypes.ComplexityComplex}, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if decision.SelectedProvider != "capable-remote" {
		t.Errorf("complex request should route to most-capable, got %q", decision.SelectedProvider)
	}

	decision, err = r.Route(Context{Complexity: orchtypes.ComplexitySimple}, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if decision.SelectedProvider != "fast-local" {
		t.Errorf("simple request should route to fastest, got %q", decision.SelectedProvider)
	}
}

func TestRoute_Forced_ValidatesToolCapability(t *testing.T) {
	r := New(newTestRegistry(), StrategyBalanced)
	candidates := []Candidate{{Provider: "no-tools", Model: "plain", Available: true}}

	_, err := r.Route(Context{ForcedProvider: "no-tools", Model: "plain", RequiresTools: true}, candidates)
	if code, ok := orcherr.CodeOf(err); !ok || code != orcherr.CodeNoToolCapableProvider {
		t.Fatalf("expected forced routing to still validate tool capability, got %v", err)
	}
}

func TestRoute_Forced_SkipsScoring(t *testing.T) {
	r := New(newTestRegistry(), StrategyBalanced)
	candidates := []Candidate{
		{Provider: "fast-local", Model: "qwen2.5-coder", Available: true, SuccessRate: 0.99},
		{Provider: "capable-remote", Model: "big-model", Available: true, SuccessRate: 0.1},
	}
	decision, err := r.Route(Context{ForcedProvider: "capable-remote", Model: "big-model"}, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if decision.SelectedProvider != "capable-remote" {
		t.Errorf("forced provider must win regardless of score, got %q", decision.SelectedProvider)
	}
	if decision.Confidence != 1.0 {
		t.Errorf("forced routing confidence = %v, want 1.0", decision.Confidence)
	}
}

func TestTieBreak_ByConfiguredOrderThenName(t *testing.T) {
	r := New(newTestRegistry(), StrategyMostCapable)
	candidates := []Candidate{
		{Provider: "zzz", Available: true, SuccessRate: 0.5, ConfiguredOrder: 1},
		{Provider: "aaa", Available: true, SuccessRate: 0.5, ConfiguredOrder: 0},
	}
	decision, err := r.Route(Context{}, candidates)
	if err != nil {
		t.Fatal(err)
	}
	if decision.SelectedProvider != "aaa" {
		t.Errorf("tie should break on ConfiguredOrder, got %q", decision.SelectedProvider)
	}
}
