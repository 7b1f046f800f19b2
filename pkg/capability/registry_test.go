package capability

import "testing"

func TestSupportsTools_ExactMatch(t *testing.T) {
	r := New(Entry{Provider: "lm-studio", Model: "qwen2.5-coder", SupportsTools: true})

	if !r.SupportsTools("lm-studio", "qwen2.5-coder") {
		t.Fatal("expected exact (provider, model) match to support tools")
	}
	if r.SupportsTools("lm-studio", "llama3") {
		t.Fatal("unregistered model should not support tools")
	}
	if r.SupportsTools("ollama", "qwen2.5-coder") {
		t.Fatal("tool capability should not leak across providers")
	}
}

func TestSupportsTools_EmptyModelAutoSelect(t *testing.T) {
	r := New(
		Entry{Provider: "lm-studio", Model: "qwen2.5-coder", SupportsTools: true},
		Entry{Provider: "ollama", Model: "llama3", SupportsTools: false},
	)

	if !r.SupportsTools("lm-studio", "") {
		t.Fatal("adapter with any tool-capable model should count as tool-capable when model unspecified")
	}
	if r.SupportsTools("ollama", "") {
		t.Fatal("provider with no tool-capable models should not be tool-capable when model unspecified")
	}
}

func TestReloadReplacesEntries(t *testing.T) {
	r := New(Entry{Provider: "lm-studio", Model: "a", SupportsTools: true})
	r.Reload([]Entry{{Provider: "lm-studio", Model: "b", SupportsTools: true}})

	if r.SupportsTools("lm-studio", "a") {
		t.Fatal("stale entry should be gone after reload")
	}
	if !r.SupportsTools("lm-studio", "b") {
		t.Fatal("new entry should be present after reload")
	}
}

func TestLookup(t *testing.T) {
	r := New(Entry{Provider: "ollama", Model: "llama3", ContextWindow: 8192})
	e, ok := r.Lookup("ollama", "llama3")
	if !ok || e.ContextWindow != 8192 {
		t.Fatalf("expected lookup hit with context window 8192, got %+v ok=%v", e, ok)
	}
	if _, ok := r.Lookup("ollama", "missing"); ok {
		t.Fatal("expected lookup miss for unregistered model")
	}
}
