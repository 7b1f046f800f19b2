package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/forgehq/forge/pkg/orchtypes"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	a := New(Config{Name: "lmstudio", BaseURL: srv.URL, Model: "qwen2.5-coder"})
	return a, srv
}

func TestRequest_Success(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "hello"}, FinishReason: "stop"}},
			Usage:   chatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	})
	defer srv.Close()

	resp, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
	if resp.FinishReason != orchtypes.FinishStop {
		t.Errorf("FinishReason = %v, want stop", resp.FinishReason)
	}
	if resp.Usage.Total != 7 {
		t.Errorf("Usage.Total = %d, want 7", resp.Usage.Total)
	}
}

func TestRequest_ToolCalls(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{
				Message: chatMessage{
					ToolCalls: []chatToolCall{{
						ID:   "call_1",
						Type: "function",
						Function: chatToolCallFunc{
							Name:      "read_file",
							Arguments: `{"path":"a.go"}`,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
		})
	})
	defer srv.Close()

	resp, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if resp.FinishReason != orchtypes.FinishToolCalls {
		t.Errorf("FinishReason = %v, want tool_calls", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
}

func TestRequest_NonOKStatus(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	})
	defer srv.Close()

	if _, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}

func TestIsAvailable(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
		}
	})
	defer srv.Close()

	if !a.IsAvailable(context.Background()) {
		t.Fatal("expected adapter to be available")
	}
}

func TestStatus_TracksLoadAndSuccessRate(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: chatMessage{Content: "ok"}, FinishReason: "stop"}},
		})
	})
	defer srv.Close()

	if _, err := a.Request(context.Background(), orchtypes.Request{Prompt: "hi"}); err != nil {
		t.Fatal(err)
	}
	status := a.Status()
	if status.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0 after completion", status.CurrentLoad)
	}
	if status.SuccessRate != 1.0 {
		t.Errorf("SuccessRate = %v, want 1.0", status.SuccessRate)
	}
}

// TestStream_ReassemblesToolCallArgumentsAcrossChunks covers §4.5 rule 4 /
// §8 scenario 4: a tool call's arguments arrive split across several SSE
// chunks, each delta tagged with the call's index, and must be concatenated
// into a single ToolCall rather than one ToolCall per fragment. A second,
// interleaved tool call at a different index must not bleed into the first.
func TestStream_ReassemblesToolCallArgumentsAcrossChunks(t *testing.T) {
	sseLines := []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"read_file","arguments":"{\"path\""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"call_2","function":{"name":"list_files","arguments":"{\"dir\""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":":\"a.go\""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"function":{"arguments":":\".\"}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}

	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, line := range sseLines {
			fmt.Fprintf(w, "data: %s\n\n", line)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprintf(w, "data: %s\n\n", sseDone)
		if flusher != nil {
			flusher.Flush()
		}
	})
	defer srv.Close()

	tokens, err := a.Stream(context.Background(), orchtypes.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var final orchtypes.StreamToken
	for tok := range tokens {
		final = tok
	}
	if !final.IsComplete {
		t.Fatal("expected final token to be terminal")
	}
	if len(final.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %d, want 2 (got %+v)", len(final.ToolCalls), final.ToolCalls)
	}

	first, second := final.ToolCalls[0], final.ToolCalls[1]
	if first.ID != "call_1" || first.Name != "read_file" || first.ArgumentsJSON != `{"path":"a.go"}` {
		t.Errorf("ToolCalls[0] = %+v, want call_1/read_file with concatenated arguments", first)
	}
	if second.ID != "call_2" || second.Name != "list_files" || second.ArgumentsJSON != `{"dir":"."}` {
		t.Errorf("ToolCalls[1] = %+v, want call_2/list_files with concatenated arguments", second)
	}
}
