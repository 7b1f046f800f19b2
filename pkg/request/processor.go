// Package request implements the Request Processor and Response Handler
// (C6): validation, sanitization, default injection and token-aware
// context trimming on the way in; canonical usage/finish-reason
// normalization on the way out. Context trimming is grounded on teacher's
// pkg/agent/token_aware_history.go + pkg/utils.TokenCounter, generalized
// from session history management to single-request message trimming.
package request

import (
	"strings"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
)

const (
	// DefaultMaxInputLength bounds prompt.length (§4.4).
	DefaultMaxInputLength = 50_000
	defaultTemperature    = 0.7
	defaultMaxTokens      = 2048
)

// ProcessorConfig configures a Processor.
type ProcessorConfig struct {
	MaxInputLength     int
	DefaultTemperature float64
	DefaultMaxTokens   int
	ContextWindow      int // in tokens; 0 disables trimming
	Model              string
	AllowedRoots       []string // permitted absolute path prefixes for embedded file references
}

// Processor enforces §4.4's Request Processor rules.
type Processor struct {
	cfg     ProcessorConfig
	counter *TokenCounter
}

// NewProcessor builds a Processor. If cfg.ContextWindow > 0, a TokenCounter
// is constructed for cfg.Model (or "" which falls back to cl100k_base).
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultMaxInputLength
	}
	if cfg.DefaultTemperature == 0 {
		cfg.DefaultTemperature = defaultTemperature
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = defaultMaxTokens
	}

	p := &Processor{cfg: cfg}
	if cfg.ContextWindow > 0 {
		counter, err := NewTokenCounter(cfg.Model)
		if err != nil {
			return nil, err
		}
		p.counter = counter
	}
	return p, nil
}

// Process validates, sanitizes, defaults and trims req, then marks it
// accepted (the lifecycle freeze point, §3.3.1). Callers MUST NOT mutate
// fields of an accepted request afterward.
func (p *Processor) Process(req orchtypes.Request) (orchtypes.Request, error) {
	if len(req.Prompt) > p.cfg.MaxInputLength {
		return orchtypes.Request{}, orcherr.New(orcherr.CodeValidationError,
			"prompt exceeds max_input_length", "shorten the prompt or raise max_input_length")
	}

	if err := validatePaths(req.Context.Files, p.cfg.AllowedRoots); err != nil {
		return orchtypes.Request{}, err
	}

	if req.ID == "" {
		req.ID = orchtypes.NewRequestID()
	}
	if req.Temperature == 0 {
		req.Temperature = p.cfg.DefaultTemperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = p.cfg.DefaultMaxTokens
	}

	if p.counter != nil && len(req.Messages) > 0 {
		req.Messages = p.trim(req.Messages)
	}

	req.MarkAccepted()
	return req, nil
}

// validatePaths rejects traversal sequences and paths escaping the
// configured allow-list (§4.4: "sanitization of embedded paths against
// traversal patterns").
func validatePaths(files []string, allowedRoots []string) error {
	for _, f := range files {
		if strings.Contains(f, "..") {
			return orcherr.New(orcherr.CodeValidationError, "path traversal sequence in file reference: "+f)
		}
		if len(allowedRoots) == 0 {
			continue
		}
		if !hasAllowedRoot(f, allowedRoots) {
			return orcherr.New(orcherr.CodeValidationError, "file reference outside allowed roots: "+f)
		}
	}
	return nil
}

func hasAllowedRoot(path string, roots []string) bool {
	for _, root := range roots {
		if strings.HasPrefix(path, root) {
			return true
		}
	}
	return false
}

// trim drops messages oldest-first until the remaining set fits
// ContextWindow tokens, never dropping the most recent user message or any
// tool message whose tool_call_id still references an un-answered call
// (§4.4).
func (p *Processor) trim(messages []orchtypes.Message) []orchtypes.Message {
	protected := protectedIndices(messages)

	total := p.totalTokens(messages)
	if total <= p.cfg.ContextWindow {
		return messages
	}

	kept := make([]bool, len(messages))
	for i := range kept {
		kept[i] = true
	}

	for i := 0; i < len(messages) && total > p.cfg.ContextWindow; i++ {
		if protected[i] {
			continue
		}
		kept[i] = false
		total -= p.counter.CountMessage(string(messages[i].Role), messages[i].Content)
	}

	out := make([]orchtypes.Message, 0, len(messages))
	for i, m := range messages {
		if kept[i] {
			out = append(out, m)
		}
	}
	return out
}

func (p *Processor) totalTokens(messages []orchtypes.Message) int {
	total := 0
	for _, m := range messages {
		total += p.counter.CountMessage(string(m.Role), m.Content)
	}
	return total
}

// protectedIndices marks the most recent user message and any tool message
// whose tool_call_id references a call the most recent assistant turn made
// but that hasn't yet been answered.
func protectedIndices(messages []orchtypes.Message) map[int]bool {
	protected := make(map[int]bool)

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == orchtypes.RoleUser {
			protected[i] = true
			break
		}
	}

	pending := unansweredToolCallIDs(messages)
	for i, m := range messages {
		if m.Role == orchtypes.RoleTool && pending[m.ToolCallID] {
			protected[i] = true
		}
	}
	return protected
}

// unansweredToolCallIDs returns the tool-call IDs of the most recent
// assistant turn; no later assistant turn has consumed their results yet.
func unansweredToolCallIDs(messages []orchtypes.Message) map[string]bool {
	pending := make(map[string]bool)
	for _, m := range messages {
		if m.Role == orchtypes.RoleAssistant {
			pending = make(map[string]bool)
			for _, tc := range m.ToolCalls {
				pending[tc.ID] = true
			}
		}
	}
	return pending
}
