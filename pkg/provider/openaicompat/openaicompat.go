// Package openaicompat implements provider.Adapter against any server
// speaking the OpenAI Chat Completions wire format — vLLM, LM Studio,
// llama.cpp server, text-generation-webui. It talks plain net/http with a
// manual SSE decode loop rather than a generated client, the same way the
// upstream adapter this was grounded on does it: local servers lag the
// hosted API's edge cases and a thin client is easier to keep correct.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/provider"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 2048
	ssePrefix        = "data: "
	sseDone          = "[DONE]"
)

// Config configures one Adapter instance.
type Config struct {
	Name          string
	BaseURL       string // e.g. http://localhost:1234/v1
	Model         string
	APIKey        string // optional; most local servers ignore it
	Timeout       time.Duration
	Strengths     []string
	OptimalFor    []string
	ContextWindow int
	MaxConcurrent int
}

// Adapter talks to an OpenAI-compatible /v1/chat/completions endpoint.
type Adapter struct {
	cfg    Config
	client *http.Client

	mu           chan struct{} // 1-buffered mutex-by-channel guarding the counters below
	currentLoad  int
	successes    int
	failures     int
	totalLatency time.Duration
	lastError    error
}

// New constructs an Adapter. BaseURL and Model are required.
func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		mu:     make(chan struct{}, 1),
	}
	a.mu <- struct{}{}
	return a
}

func (a *Adapter) lock()   { <-a.mu }
func (a *Adapter) unlock() { a.mu <- struct{}{} }

func (a *Adapter) Name() string { return a.cfg.Name }

// IsAvailable probes the server's /models endpoint, bounded by
// provider.DefaultAvailabilityTimeout.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.DefaultAvailabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/models", nil)
	if err != nil {
		return false
	}
	a.setAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (a *Adapter) setAuth(req *http.Request) {
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	Index    int              `json:"index,omitempty"`
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatToolSpec `json:"function"`
}

type chatToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	Delta        chatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func toChatMessages(msgs []orchtypes.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatToolCallFunc{
					Name:      tc.Name,
					Arguments: tc.ArgumentsJSON,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func toChatTools(tools []orchtypes.Tool) []chatTool {
	out := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, chatTool{
			Type: "function",
			Function: chatToolSpec{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func (a *Adapter) buildRequest(req orchtypes.Request, stream bool) chatRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	var temp *float64
	if req.Temperature != 0 {
		t := req.Temperature
		temp = &t
	}
	return chatRequest{
		Model:       a.cfg.Model,
		Messages:    toChatMessages(req.Messages),
		Tools:       toChatTools(req.Tools),
		Temperature: temp,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
}

func (a *Adapter) trackStart() {
	a.lock()
	a.currentLoad++
	a.unlock()
}

func (a *Adapter) trackEnd(latency time.Duration, err error) {
	a.lock()
	a.currentLoad--
	a.totalLatency += latency
	if err != nil {
		a.failures++
		a.lastError = err
	} else {
		a.successes++
	}
	a.unlock()
}

// Request performs a non-streaming chat completion.
func (a *Adapter) Request(ctx context.Context, req orchtypes.Request) (orchtypes.Response, error) {
	start := time.Now()
	a.trackStart()
	var err error
	defer func() { a.trackEnd(time.Since(start), err) }()

	body := a.buildRequest(req, false)
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderProtocolError, "encode chat request", marshalErr)
		return orchtypes.Response{}, err
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if reqErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "build chat request", reqErr)
		return orchtypes.Response{}, err
	}
	a.setAuth(httpReq)

	resp, doErr := a.client.Do(httpReq)
	if doErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "call "+a.cfg.Name, doErr)
		return orchtypes.Response{}, err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "read chat response", readErr)
		return orchtypes.Response{}, err
	}

	if resp.StatusCode != http.StatusOK {
		err = orcherr.New(orcherr.CodeProviderProtocolError, fmt.Sprintf("%s returned %d: %s", a.cfg.Name, resp.StatusCode, string(respBody)))
		return orchtypes.Response{}, err
	}

	var parsed chatResponse
	if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderProtocolError, "decode chat response", jsonErr)
		return orchtypes.Response{}, err
	}
	if parsed.Error != nil {
		err = orcherr.New(orcherr.CodeProviderProtocolError, parsed.Error.Message)
		return orchtypes.Response{}, err
	}
	if len(parsed.Choices) == 0 {
		err = orcherr.New(orcherr.CodeProviderProtocolError, a.cfg.Name+" returned no choices")
		return orchtypes.Response{}, err
	}

	choice := parsed.Choices[0]
	return orchtypes.Response{
		ID:           orchtypes.NewRequestID(),
		Provider:     a.cfg.Name,
		Model:        a.cfg.Model,
		Content:      choice.Message.Content,
		ToolCalls:    fromChatToolCalls(choice.Message.ToolCalls),
		FinishReason: finishReasonOf(choice.FinishReason, len(choice.Message.ToolCalls) > 0),
		ResponseTime: time.Since(start),
		Usage: orchtypes.Usage{
			Prompt:     parsed.Usage.PromptTokens,
			Completion: parsed.Usage.CompletionTokens,
			Total:      parsed.Usage.TotalTokens,
		},
	}, nil
}

func fromChatToolCalls(calls []chatToolCall) []orchtypes.ToolCall {
	out := make([]orchtypes.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, orchtypes.ToolCall{
			ID:            c.ID,
			Name:          c.Function.Name,
			ArgumentsJSON: c.Function.Arguments,
		})
	}
	return out
}

func finishReasonOf(raw string, hasToolCalls bool) orchtypes.FinishReason {
	if hasToolCalls {
		return orchtypes.FinishToolCalls
	}
	switch raw {
	case "length":
		return orchtypes.FinishLength
	default:
		return orchtypes.FinishStop
	}
}

// Stream performs a streaming chat completion over SSE, decoding `data: `
// lines with bufio.Scanner rather than a net/http SSE client library.
func (a *Adapter) Stream(ctx context.Context, req orchtypes.Request) (<-chan orchtypes.StreamToken, error) {
	body := a.buildRequest(req, true)
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderProtocolError, "encode chat stream request", marshalErr)
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if reqErr != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "build chat stream request", reqErr)
	}
	a.setAuth(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	a.trackStart()

	resp, doErr := a.client.Do(httpReq)
	if doErr != nil {
		a.trackEnd(time.Since(start), doErr)
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "call "+a.cfg.Name, doErr)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		err := orcherr.New(orcherr.CodeProviderProtocolError, fmt.Sprintf("%s returned %d: %s", a.cfg.Name, resp.StatusCode, string(errBody)))
		a.trackEnd(time.Since(start), err)
		return nil, err
	}

	out := make(chan orchtypes.StreamToken, 16)
	go a.pumpStream(ctx, resp.Body, out, start)
	return out, nil
}

// pumpStream is the single writer for this stream (§4.5: single-writer per
// stream, no shared mutable state with any other in-flight stream).
func (a *Adapter) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- orchtypes.StreamToken, start time.Time) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var index int
	toolArgs := map[int]*strings.Builder{}
	toolNames := map[int]string{}
	toolIDs := map[int]string{}
	var finalErr error
	cancelled := false

scan:
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			cancelled = true
			break scan
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, ssePrefix) {
			continue
		}
		data := strings.TrimPrefix(line, ssePrefix)
		if data == sseDone {
			break
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			out <- orchtypes.StreamToken{Index: index, Content: delta.Content, Timestamp: time.Now()}
			index++
		}
		for _, tc := range delta.ToolCalls {
			i := tc.Index
			if _, ok := toolArgs[i]; !ok {
				toolArgs[i] = &strings.Builder{}
			}
			if tc.ID != "" {
				toolIDs[i] = tc.ID
			}
			if tc.Function.Name != "" {
				toolNames[i] = tc.Function.Name
			}
			toolArgs[i].WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		finalErr = orcherr.Wrap(orcherr.CodeProviderUnavailable, "read chat stream", err)
	}

	var calls []orchtypes.ToolCall
	if !cancelled {
		indices := make([]int, 0, len(toolArgs))
		for i := range toolArgs {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			calls = append(calls, orchtypes.ToolCall{
				ID:            toolIDs[i],
				Name:          toolNames[i],
				ArgumentsJSON: toolArgs[i].String(),
			})
		}
	}

	out <- orchtypes.StreamToken{
		Index:      index,
		ToolCalls:  calls,
		IsComplete: true,
		Cancelled:  cancelled,
		Timestamp:  time.Now(),
		Err:        finalErr,
	}
	a.trackEnd(time.Since(start), finalErr)
}

func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Strengths:         a.cfg.Strengths,
		OptimalFor:        a.cfg.OptimalFor,
		ResponseTimeClass: "standard",
		ContextWindow:     a.cfg.ContextWindow,
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxConcurrent:     a.cfg.MaxConcurrent,
	}
}

func (a *Adapter) Status() provider.Health {
	a.lock()
	defer a.unlock()

	total := a.successes + a.failures
	var avgLatency time.Duration
	var successRate float64
	if total > 0 {
		avgLatency = a.totalLatency / time.Duration(total)
		successRate = float64(a.successes) / float64(total)
	}
	return provider.Health{
		Available:     a.lastError == nil || a.successes > 0,
		CurrentLoad:   a.currentLoad,
		AvgLatency:    avgLatency,
		SuccessRate:   successRate,
		LastError:     a.lastError,
		LastCheckedAt: time.Now(),
	}
}

// ListModels queries the server's /models endpoint.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "build models request", err)
	}
	a.setAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "list models", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderProtocolError, "decode models response", err)
	}
	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

var (
	_ provider.Adapter     = (*Adapter)(nil)
	_ provider.ModelLister = (*Adapter)(nil)
)
