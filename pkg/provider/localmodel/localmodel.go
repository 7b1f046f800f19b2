// Package localmodel implements provider.Adapter against a locally hosted
// model daemon speaking the Ollama wire protocol (/api/chat, /api/generate,
// /api/tags): newline-delimited JSON rather than SSE, streamed over a
// bufio.Reader line scan.
package localmodel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/orcherr"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/provider"
)

const defaultTimeout = 120 * time.Second

// Config configures one Adapter instance.
type Config struct {
	Name          string
	BaseURL       string // e.g. http://localhost:11434
	Model         string
	Timeout       time.Duration
	Strengths     []string
	OptimalFor    []string
	ContextWindow int
	MaxConcurrent int
}

// Adapter talks to a local /api/chat-style daemon.
type Adapter struct {
	cfg    Config
	client *http.Client

	mu           chan struct{}
	currentLoad  int
	successes    int
	failures     int
	totalLatency time.Duration
	lastError    error
}

// New constructs an Adapter.
func New(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}

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

// IsAvailable probes /api/tags, bounded by provider.DefaultAvailabilityTimeout.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.DefaultAvailabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type localMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []localToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type localToolCall struct {
	Function localToolCallFunc `json:"function"`
}

type localToolCallFunc struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type localTool struct {
	Type     string        `json:"type"`
	Function localToolSpec `json:"function"`
}

type localToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type localOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type localRequest struct {
	Model    string         `json:"model"`
	Messages []localMessage `json:"messages"`
	Stream   bool           `json:"stream"`
	Tools    []localTool    `json:"tools,omitempty"`
	Options  *localOptions  `json:"options,omitempty"`
}

type localResponse struct {
	Message         localMessage `json:"message"`
	Done            bool         `json:"done"`
	PromptEvalCount int          `json:"prompt_eval_count"`
	EvalCount       int          `json:"eval_count"`
	Error           string       `json:"error,omitempty"`
}

func toLocalMessages(msgs []orchtypes.Message) []localMessage {
	out := make([]localMessage, 0, len(msgs))
	for _, m := range msgs {
		lm := localMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.ArgumentsJSON), &args)
			lm.ToolCalls = append(lm.ToolCalls, localToolCall{
				Function: localToolCallFunc{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, lm)
	}
	return out
}

func toLocalTools(tools []orchtypes.Tool) []localTool {
	out := make([]localTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, localTool{
			Type: "function",
			Function: localToolSpec{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return out
}

func (a *Adapter) buildRequest(req orchtypes.Request, stream bool) localRequest {
	opts := &localOptions{Temperature: req.Temperature}
	if req.MaxTokens > 0 {
		opts.NumPredict = req.MaxTokens
	}
	return localRequest{
		Model:    a.cfg.Model,
		Messages: toLocalMessages(req.Messages),
		Tools:    toLocalTools(req.Tools),
		Options:  opts,
		Stream:   stream,
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

// Request performs a non-streaming call against /api/chat.
func (a *Adapter) Request(ctx context.Context, req orchtypes.Request) (orchtypes.Response, error) {
	start := time.Now()
	a.trackStart()
	var err error
	defer func() { a.trackEnd(time.Since(start), err) }()

	body := a.buildRequest(req, false)
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderProtocolError, "encode local request", marshalErr)
		return orchtypes.Response{}, err
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if reqErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "build local request", reqErr)
		return orchtypes.Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, doErr := a.client.Do(httpReq)
	if doErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "call "+a.cfg.Name, doErr)
		return orchtypes.Response{}, err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderUnavailable, "read local response", readErr)
		return orchtypes.Response{}, err
	}
	if resp.StatusCode != http.StatusOK {
		err = orcherr.New(orcherr.CodeProviderProtocolError, fmt.Sprintf("%s returned %d: %s", a.cfg.Name, resp.StatusCode, string(respBody)))
		return orchtypes.Response{}, err
	}

	var parsed localResponse
	if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
		err = orcherr.Wrap(orcherr.CodeProviderProtocolError, "decode local response", jsonErr)
		return orchtypes.Response{}, err
	}
	if parsed.Error != "" {
		err = orcherr.New(orcherr.CodeProviderProtocolError, parsed.Error)
		return orchtypes.Response{}, err
	}

	calls := fromLocalToolCalls(parsed.Message.ToolCalls)
	return orchtypes.Response{
		ID:           orchtypes.NewRequestID(),
		Provider:     a.cfg.Name,
		Model:        a.cfg.Model,
		Content:      parsed.Message.Content,
		ToolCalls:    calls,
		FinishReason: finishReasonOf(len(calls) > 0),
		ResponseTime: time.Since(start),
		Usage: orchtypes.Usage{
			Prompt:     parsed.PromptEvalCount,
			Completion: parsed.EvalCount,
			Total:      parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

func fromLocalToolCalls(calls []localToolCall) []orchtypes.ToolCall {
	out := make([]orchtypes.ToolCall, 0, len(calls))
	for _, c := range calls {
		args, _ := json.Marshal(c.Function.Arguments)
		out = append(out, orchtypes.ToolCall{
			ID:            orchtypes.NewToolCallID(),
			Name:          c.Function.Name,
			ArgumentsJSON: string(args),
		})
	}
	return out
}

func finishReasonOf(hasToolCalls bool) orchtypes.FinishReason {
	if hasToolCalls {
		return orchtypes.FinishToolCalls
	}
	return orchtypes.FinishStop
}

// Stream performs a streaming call against /api/chat, reading
// newline-delimited JSON objects rather than SSE frames.
func (a *Adapter) Stream(ctx context.Context, req orchtypes.Request) (<-chan orchtypes.StreamToken, error) {
	body := a.buildRequest(req, true)
	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderProtocolError, "encode local stream request", marshalErr)
	}

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/chat", bytes.NewReader(payload))
	if reqErr != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "build local stream request", reqErr)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

func (a *Adapter) pumpStream(ctx context.Context, body io.ReadCloser, out chan<- orchtypes.StreamToken, start time.Time) {
	defer close(out)
	defer body.Close()

	reader := bufio.NewReader(body)
	var index int
	var toolCalls []localToolCall
	var finalErr error
	cancelled := false

loop:
	for {
		select {
		case <-ctx.Done():
			cancelled = true
			break loop
		default:
		}

		line, readErr := reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var chunk localResponse
			if jsonErr := json.Unmarshal(line, &chunk); jsonErr == nil {
				if chunk.Error != "" {
					finalErr = orcherr.New(orcherr.CodeProviderProtocolError, chunk.Error)
					break loop
				}
				if chunk.Message.Content != "" {
					out <- orchtypes.StreamToken{Index: index, Content: chunk.Message.Content, Timestamp: time.Now()}
					index++
				}
				toolCalls = append(toolCalls, chunk.Message.ToolCalls...)
				if chunk.Done {
					break loop
				}
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				finalErr = orcherr.Wrap(orcherr.CodeProviderUnavailable, "read local stream", readErr)
			}
			break loop
		}
	}

	var calls []orchtypes.ToolCall
	if !cancelled {
		calls = fromLocalToolCalls(toolCalls)
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
		ResponseTimeClass: "fast",
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

// ListModels queries /api/tags.
func (a *Adapter) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "build tags request", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderUnavailable, "list models", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, orcherr.Wrap(orcherr.CodeProviderProtocolError, "decode tags response", err)
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

var (
	_ provider.Adapter     = (*Adapter)(nil)
	_ provider.ModelLister = (*Adapter)(nil)
)
