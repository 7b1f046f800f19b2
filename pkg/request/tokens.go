package request

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens against a model's tiktoken encoding, falling
// back to cl100k_base when the model is unrecognized — the same fallback
// chain teacher's pkg/utils.TokenCounter uses.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewTokenCounter builds a counter for model, caching the resolved encoding
// process-wide since tiktoken.Tiktoken construction loads a BPE rank file.
func NewTokenCounter(model string) (*TokenCounter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TokenCounter{encoding: cached}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("request: resolve token encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TokenCounter{encoding: encoding}, nil
}

// Count returns the exact token count of text.
func (tc *TokenCounter) Count(text string) int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

// perMessageOverhead is the `<|start|>role|message<|end|>` framing cost
// per OpenAI's published token-counting cookbook.
const perMessageOverhead = 3

// CountMessage counts role+content tokens plus per-message framing overhead.
func (tc *TokenCounter) CountMessage(role, content string) int {
	return perMessageOverhead + tc.Count(role) + tc.Count(content)
}
