package request

import "github.com/forgehq/forge/pkg/orchtypes"

// AdapterReply is the minimal shape an adapter hands back before it's
// normalized into a canonical orchtypes.Response. Adapters already return
// orchtypes.Response directly (pkg/provider), so the Response Handler here
// mainly re-validates/repairs the finish_reason and usage invariants for
// replies assembled outside a single adapter call — e.g. after stream.Collect
// or hybrid-executor escalation.
type AdapterReply struct {
	Content      string
	ToolCalls    []orchtypes.ToolCall
	PromptTokens int
	OutputTokens int
	RawFinish    string
}

// Normalize converts an AdapterReply into the canonical Response shape
// (§4.4): usage accounting, tool-call normalization, and finish_reason in
// {stop, length, tool_calls, error}.
func Normalize(reply AdapterReply) orchtypes.Response {
	return orchtypes.Response{
		ID:           orchtypes.NewRequestID(),
		Content:      reply.Content,
		ToolCalls:    reply.ToolCalls,
		FinishReason: normalizeFinishReason(reply.RawFinish, len(reply.ToolCalls) > 0),
		Usage: orchtypes.Usage{
			Prompt:     reply.PromptTokens,
			Completion: reply.OutputTokens,
			Total:      reply.PromptTokens + reply.OutputTokens,
		},
	}
}

func normalizeFinishReason(raw string, hasToolCalls bool) orchtypes.FinishReason {
	if hasToolCalls {
		return orchtypes.FinishToolCalls
	}
	switch raw {
	case "length", "max_tokens":
		return orchtypes.FinishLength
	case "error":
		return orchtypes.FinishError
	default:
		return orchtypes.FinishStop
	}
}
