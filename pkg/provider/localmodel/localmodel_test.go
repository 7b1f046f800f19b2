package localmodel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgehq/forge/pkg/orchtypes"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	a := New(Config{Name: "ollama", BaseURL: srv.URL, Model: "llama3"})
	return a, srv
}

func TestRequest_Success(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(localResponse{
			Message:         localMessage{Role: "assistant", Content: "hi there"},
			Done:            true,
			PromptEvalCount: 3,
			EvalCount:       4,
		})
	})
	defer srv.Close()

	resp, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if resp.Content != "hi there" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.Total != 7 {
		t.Errorf("Usage.Total = %d, want 7", resp.Usage.Total)
	}
}

func TestRequest_ErrorField(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(localResponse{Error: "model not found"})
	})
	defer srv.Close()

	if _, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for non-empty Error field")
	}
}

func TestListModels(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"qwen2.5-coder"}]}`))
	})
	defer srv.Close()

	models, err := a.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "llama3" {
		t.Fatalf("unexpected models: %v", models)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	a := New(Config{Name: "ollama", Model: "llama3"})
	if a.cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q, want default", a.cfg.BaseURL)
	}
}
