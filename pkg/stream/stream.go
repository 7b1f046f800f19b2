// Package stream implements the Streaming Pipeline (C5): a single-writer
// producer/consumer forwarder that assigns strictly increasing indices to
// adapter-produced tokens, forwards each token's tool calls unchanged (it
// does not buffer or reassemble tool-call fragments; the adapter attaches
// reassembled calls to its tokens), and propagates cancellation as a
// sentinel rather than a silently closed channel.
package stream

import (
	"context"

	"github.com/forgehq/forge/pkg/orchtypes"
)

// Pipe forwards tokens from in to the returned channel, reassigning index
// (§4.5 rule 2: pipeline-assigned, starting at 0, strictly increasing) and
// guaranteeing exactly one terminal token is the last value sent. If ctx is
// cancelled before in is drained, Pipe stops forwarding, emits a terminal
// token with Cancelled set, and discards whatever upstream still sends.
func Pipe(ctx context.Context, in <-chan orchtypes.StreamToken) <-chan orchtypes.StreamToken {
	out := make(chan orchtypes.StreamToken, cap(in))
	go pump(ctx, in, out)
	return out
}

func pump(ctx context.Context, in <-chan orchtypes.StreamToken, out chan<- orchtypes.StreamToken) {
	defer close(out)

	var index int
	for {
		select {
		case <-ctx.Done():
			out <- orchtypes.StreamToken{
				Index:      index,
				IsComplete: true,
				Cancelled:  true,
			}
			drain(in)
			return
		case tok, ok := <-in:
			if !ok {
				// Upstream closed without ever emitting a terminal token;
				// still guarantee the single terminal-token invariant.
				out <- orchtypes.StreamToken{Index: index, IsComplete: true}
				return
			}

			tok.Index = index
			index++
			out <- tok
			if tok.IsComplete {
				return
			}
		}
	}
}

// drain discards any tokens still in flight on a cancelled upstream so its
// goroutine isn't left blocked on a send.
func drain(in <-chan orchtypes.StreamToken) {
	for range in {
	}
}

// Collect consumes a full stream and reassembles it into a single Response,
// used when a caller asked for Request() semantics but the adapter only
// exposes Stream() (or for tests). The textual stream and the structured
// tool-call output are the two observable outputs of §4.5 rule 5; Collect
// materializes both before returning.
func Collect(tokens <-chan orchtypes.StreamToken) (orchtypes.Response, error) {
	var resp orchtypes.Response
	var content []byte

	for tok := range tokens {
		content = append(content, tok.Content...)
		if len(tok.ToolCalls) > 0 {
			resp.ToolCalls = tok.ToolCalls
		}
		if tok.IsComplete {
			if tok.Err != nil {
				return orchtypes.Response{}, tok.Err
			}
			if tok.Cancelled {
				resp.FinishReason = orchtypes.FinishError
			} else if len(resp.ToolCalls) > 0 {
				resp.FinishReason = orchtypes.FinishToolCalls
			} else {
				resp.FinishReason = orchtypes.FinishStop
			}
		}
	}
	resp.Content = string(content)
	return resp, nil
}
