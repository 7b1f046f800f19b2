package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgehq/forge/pkg/capability"
	"github.com/forgehq/forge/pkg/config"
	"github.com/forgehq/forge/pkg/orchtypes"
	"github.com/forgehq/forge/pkg/provider"
	"github.com/forgehq/forge/pkg/tools"
)

type fakeAdapter struct {
	name      string
	available bool
	reply     orchtypes.Response
}

func (f *fakeAdapter) Name() string                        { return f.name }
func (f *fakeAdapter) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeAdapter) Capabilities() provider.Capabilities  { return provider.Capabilities{MaxConcurrent: 4} }
func (f *fakeAdapter) Status() provider.Health {
	return provider.Health{Available: f.available, SuccessRate: 0.9}
}
func (f *fakeAdapter) Request(ctx context.Context, req orchtypes.Request) (orchtypes.Response, error) {
	return f.reply, nil
}
func (f *fakeAdapter) Stream(ctx context.Context, req orchtypes.Request) (<-chan orchtypes.StreamToken, error) {
	ch := make(chan orchtypes.StreamToken, 2)
	ch <- orchtypes.StreamToken{Content: "hi"}
	ch <- orchtypes.StreamToken{IsComplete: true}
	close(ch)
	return ch, nil
}

func testEngine() *Engine {
	adapter := &fakeAdapter{name: "local", available: true, reply: orchtypes.Response{Content: "ok", Provider: "local"}}
	caps := capability.New(capability.Entry{Provider: "local", Model: "", SupportsTools: true})
	return NewEngine(config.Default(), []provider.Adapter{adapter}, caps, tools.NewRegistry())
}

func TestHandleRequest_ReturnsAdapterResponse(t *testing.T) {
	engine := testEngine()
	body, err := json.Marshal(orchtypes.Request{Prompt: "hello"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/request", bytes.NewReader(body))
	newRouter(engine, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp orchtypes.Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Content)
}

func TestHandleRequest_RejectsMalformedBody(t *testing.T) {
	engine := testEngine()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/request", bytes.NewReader([]byte("{not json")))
	newRouter(engine, nil).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleStream_WritesNDJSONTokens(t *testing.T) {
	engine := testEngine()
	body, err := json.Marshal(orchtypes.Request{Prompt: "hello"})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stream", bytes.NewReader(body))
	newRouter(engine, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var lines int
	dec := json.NewDecoder(rr.Body)
	for {
		var tok orchtypes.StreamToken
		if err := dec.Decode(&tok); err != nil {
			break
		}
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestHandleHealth_ReportsProviderStatus(t *testing.T) {
	engine := testEngine()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	newRouter(engine, nil).ServeHTTP(rr, req)

	var body struct {
		Healthy   bool            `json:"healthy"`
		Providers map[string]bool `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
	assert.True(t, body.Providers["local"])
}

func TestServer_StartStop(t *testing.T) {
	srv, err := New(Options{Engine: testEngine(), Port: 0})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	srv.Wait()
}
