// Package orchtypes holds the canonical domain types shared across the
// orchestration core: requests, messages, tool calls, responses, stream
// tokens and routing decisions. Every other package imports from here rather
// than declaring its own copies, so the wire shape of a Request or Response
// never drifts between the router, the executor and the streaming pipeline.
package orchtypes

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the caller-assigned urgency of a Request.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FinishReason explains why a Response stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Complexity is the router's estimate of how hard a request is to satisfy.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Tool is a function the model may invoke, described JSON-schema style.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the callable signature of a Tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a single structured function invocation emitted by a model.
type ToolCall struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Message is one turn in a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// RequestContext carries workspace and session metadata scoped to a Request.
type RequestContext struct {
	SessionID        string   `json:"session_id"`
	WorkingDirectory string   `json:"working_directory"`
	SecurityLevel    string   `json:"security_level"`
	Files            []string `json:"files,omitempty"`
}

// Request is an immutable-once-accepted unit of work submitted to the
// orchestrator. Prompt or Messages (or both) must be populated.
type Request struct {
	ID          string          `json:"id"`
	Prompt      string          `json:"prompt,omitempty"`
	Model       string          `json:"model,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
	Tools       []Tool          `json:"tools,omitempty"`
	Messages    []Message       `json:"messages,omitempty"`
	Context     RequestContext  `json:"context"`
	Timeout     time.Duration   `json:"timeout"`
	Priority    Priority        `json:"priority"`
	accepted    bool
}

// Accepted reports whether the request has passed through the Request
// Processor and is therefore frozen (see lifecycle rule §3.3.1).
func (r *Request) Accepted() bool { return r.accepted }

// MarkAccepted freezes the request. Only the Request Processor calls this.
func (r *Request) MarkAccepted() { r.accepted = true }

// Usage is token accounting for a single Response.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response is the canonical shape every provider reply is normalized into.
type Response struct {
	ID           string        `json:"id"`
	Content      string        `json:"content,omitempty"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Usage        Usage         `json:"usage"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	FinishReason FinishReason  `json:"finish_reason"`
	ResponseTime time.Duration `json:"response_time"`
	Confidence   float64       `json:"confidence,omitempty"`
}

// StreamToken is one unit of a streamed Response. ToolCalls is populated
// only on the final (IsComplete) token, once per-call argument fragments
// have been fully buffered and reassembled (§4.5).
type StreamToken struct {
	Content    string         `json:"content"`
	IsComplete bool           `json:"is_complete"`
	Index      int            `json:"index"`
	Timestamp  time.Time      `json:"timestamp"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	Cancelled  bool           `json:"cancelled,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Err        error          `json:"-"`
}

// ReasoningStep is one plan/act/observe cycle of the ReAct loop.
type ReasoningStep struct {
	Thought     string    `json:"thought"`
	Tool        string    `json:"tool"`
	ToolInput   map[string]any `json:"tool_input"`
	Observation string    `json:"observation,omitempty"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoutingDecision is the immutable record of how a Request was routed.
type RoutingDecision struct {
	SelectedProvider      string        `json:"selected_provider"`
	Confidence            float64       `json:"confidence"`
	Reasoning             string        `json:"reasoning"`
	FallbackChain         []string      `json:"fallback_chain"`
	EscalationThreshold   *float64      `json:"escalation_threshold,omitempty"`
	EstimatedResponseTime time.Duration `json:"estimated_response_time"`
}

// ToolExecutionResult is the outcome of dispatching one ToolCall.
type ToolExecutionResult struct {
	ToolName      string        `json:"tool_name"`
	Success       bool          `json:"success"`
	Result        string        `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ProviderHealth is the mutable, router-visible health snapshot of a provider.
type ProviderHealth struct {
	Available       bool          `json:"available"`
	CurrentLoad     int           `json:"current_load"`
	MaxLoad         int           `json:"max_load"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ErrorRate       float64       `json:"error_rate"`
	LastError       string        `json:"last_error,omitempty"`
}

// NewRequestID returns a fresh, globally unique request id, used by the
// Request Processor when a caller does not supply one (§4.4).
func NewRequestID() string {
	return uuid.NewString()
}

// NewToolCallID returns a fresh tool-call id, unique within a response.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}
