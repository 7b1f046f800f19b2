package stream

import (
	"context"
	"testing"
	"time"

	"github.com/forgehq/forge/pkg/orchtypes"
)

func TestPipe_ReassignsIndicesFromZero(t *testing.T) {
	in := make(chan orchtypes.StreamToken, 3)
	in <- orchtypes.StreamToken{Index: 99, Content: "a"}
	in <- orchtypes.StreamToken{Index: 5, Content: "b"}
	in <- orchtypes.StreamToken{Index: 1, Content: "c", IsComplete: true}
	close(in)

	out := Pipe(context.Background(), in)
	var got []orchtypes.StreamToken
	for tok := range out {
		got = append(got, tok)
	}

	if len(got) != 3 {
		t.Fatalf("got %d tokens, want 3", len(got))
	}
	for i, tok := range got {
		if tok.Index != i {
			t.Errorf("token %d has Index %d, want %d", i, tok.Index, i)
		}
	}
	if !got[len(got)-1].IsComplete {
		t.Fatal("last forwarded token must be the terminal one")
	}
}

func TestPipe_ExactlyOneTerminalToken(t *testing.T) {
	in := make(chan orchtypes.StreamToken, 2)
	in <- orchtypes.StreamToken{Content: "a"}
	in <- orchtypes.StreamToken{Content: "b", IsComplete: true}
	close(in)

	out := Pipe(context.Background(), in)
	terminalCount := 0
	var last orchtypes.StreamToken
	for tok := range out {
		if tok.IsComplete {
			terminalCount++
		}
		last = tok
	}
	if terminalCount != 1 {
		t.Fatalf("terminalCount = %d, want exactly 1", terminalCount)
	}
	if !last.IsComplete {
		t.Fatal("the final forwarded token must be the terminal one")
	}
}

func TestPipe_CancellationEmitsCancelledTerminal(t *testing.T) {
	in := make(chan orchtypes.StreamToken)
	ctx, cancel := context.WithCancel(context.Background())

	out := Pipe(ctx, in)
	cancel()

	select {
	case tok := <-out:
		if !tok.IsComplete || !tok.Cancelled {
			t.Fatalf("expected cancelled terminal token, got %+v", tok)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation sentinel")
	}
	close(in)
}

func TestCollect_ReassemblesContentAndToolCalls(t *testing.T) {
	in := make(chan orchtypes.StreamToken, 3)
	in <- orchtypes.StreamToken{Content: "Hello, "}
	in <- orchtypes.StreamToken{Content: "world"}
	in <- orchtypes.StreamToken{
		IsComplete: true,
		ToolCalls:  []orchtypes.ToolCall{{ID: "call_1", Name: "read_file"}},
	}
	close(in)

	resp, err := Collect(in)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if resp.Content != "Hello, world" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello, world")
	}
	if resp.FinishReason != orchtypes.FinishToolCalls {
		t.Errorf("FinishReason = %v, want tool_calls", resp.FinishReason)
	}
}

func TestCollect_PropagatesTerminalError(t *testing.T) {
	in := make(chan orchtypes.StreamToken, 1)
	in <- orchtypes.StreamToken{IsComplete: true, Err: context.DeadlineExceeded}
	close(in)

	if _, err := Collect(in); err == nil {
		t.Fatal("expected terminal token error to propagate")
	}
}
