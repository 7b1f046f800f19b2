// Command forge runs the local-first AI coding orchestrator: a single
// process that routes natural-language requests across local model
// backends (Ollama-style daemons, or any OpenAI-compatible server such as
// vLLM or llama.cpp server), runs multi-step tool-using ReAct agents, and
// serves the result over a loopback HTTP ingress (§6.2).
//
// Usage:
//
//	forge -providers ollama=http://localhost:11434/qwen2.5-coder:7b
//	forge -config forge.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/forgehq/forge/pkg/capability"
	"github.com/forgehq/forge/pkg/config"
	"github.com/forgehq/forge/pkg/eventbus"
	"github.com/forgehq/forge/pkg/logging"
	"github.com/forgehq/forge/pkg/metrics"
	"github.com/forgehq/forge/pkg/provider"
	"github.com/forgehq/forge/pkg/provider/localmodel"
	"github.com/forgehq/forge/pkg/provider/openaicompat"
	"github.com/forgehq/forge/pkg/search"
	"github.com/forgehq/forge/pkg/server"
	"github.com/forgehq/forge/pkg/tools"
	"github.com/forgehq/forge/pkg/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "forge:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file overlaying the defaults")
		providers  = flag.String("providers", "ollama=http://localhost:11434/qwen2.5-coder:7b", "comma-separated provider=base_url/model entries")
		host       = flag.String("host", "127.0.0.1", "ingress bind host (loopback only)")
		port       = flag.Int("port", 8080, "ingress bind port")
		workingDir = flag.String("working-dir", ".", "working directory for filesystem/search tools")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		tracingOn  = flag.Bool("tracing", false, "enable stdout span export")
	)
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("load .env files: %w", err)
	}
	logging.Init(logging.ParseLevel(*logLevel), os.Stderr)
	log := logging.Get()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := tracing.Init(ctx, tracing.Config{Enabled: *tracingOn, ServiceName: "forge", SamplingRate: 1.0}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	reg := metrics.New()

	adapters, entries, err := buildProviders(*providers)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	caps := capability.New(entries...)

	toolRegistry, err := buildTools(*workingDir)
	if err != nil {
		return fmt.Errorf("build tools: %w", err)
	}

	engine := server.NewEngine(cfg, adapters, caps, toolRegistry)
	subscribeEventLogger(engine, log)
	srv, err := server.New(server.Options{Engine: engine, Metrics: reg, Host: *host, Port: *port})
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("forge started", "providers", len(adapters), "tools", len(toolRegistry.List()))

	<-ctx.Done()
	log.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return srv.Stop(stopCtx)
}

// buildProviders parses "-providers" into concrete adapters. Each entry has
// the form name=base_url/model, e.g. "ollama=http://localhost:11434/qwen2.5-coder:7b"
// or "vllm=http://localhost:8000/v1/mistral-7b-instruct". A provider named
// "vllm" or anything not recognized as an Ollama-style host is wired
// through openaicompat; "ollama" is wired through localmodel, matching
// the two concrete C1 adapters this orchestrator ships.
func buildProviders(spec string) ([]provider.Adapter, []capability.Entry, error) {
	raw := strings.Split(spec, ",")
	if len(raw) == 0 || (len(raw) == 1 && raw[0] == "") {
		return nil, nil, fmt.Errorf("no providers configured")
	}

	adapters := make([]provider.Adapter, 0, len(raw))
	entries := make([]capability.Entry, 0, len(raw))
	for _, item := range raw {
		name, baseURL, model, err := parseProviderSpec(item)
		if err != nil {
			return nil, nil, err
		}

		apiKey := config.GetProviderAPIKey(name)
		var adapter provider.Adapter
		if name == "ollama" {
			adapter = localmodel.New(localmodel.Config{Name: name, BaseURL: baseURL, Model: model, MaxConcurrent: 4})
		} else {
			adapter = openaicompat.New(openaicompat.Config{Name: name, BaseURL: baseURL, Model: model, APIKey: apiKey, MaxConcurrent: 4})
		}

		adapters = append(adapters, adapter)
		caps := adapter.Capabilities()
		entries = append(entries, capability.Entry{
			Provider:          name,
			Model:             model,
			Strengths:         caps.Strengths,
			OptimalFor:        caps.OptimalFor,
			ContextWindow:     caps.ContextWindow,
			SupportsStreaming: caps.SupportsStreaming,
			SupportsTools:     caps.SupportsTools,
			MaxConcurrent:     caps.MaxConcurrent,
		})
	}
	return adapters, entries, nil
}

// parseProviderSpec splits "name=base_url/model" into its three parts. The
// base URL itself may contain slashes, so the model is taken as everything
// after the final one.
func parseProviderSpec(item string) (name, baseURL, model string, err error) {
	eq := strings.IndexByte(item, '=')
	if eq < 0 {
		return "", "", "", fmt.Errorf("invalid provider spec %q: expected name=base_url/model", item)
	}
	name, rest := item[:eq], item[eq+1:]
	slash := strings.LastIndexByte(rest, '/')
	if slash < 0 {
		return "", "", "", fmt.Errorf("invalid provider spec %q: expected name=base_url/model", item)
	}
	return name, rest[:slash], rest[slash+1:], nil
}

func buildTools(workingDir string) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	readTool, err := tools.NewReadFileTool(workingDir, 0)
	if err != nil {
		return nil, err
	}
	listTool, err := tools.NewListFilesTool(workingDir)
	if err != nil {
		return nil, err
	}
	writeTool, err := tools.NewWriteFileTool(workingDir, 0)
	if err != nil {
		return nil, err
	}
	searchEngine := search.New(workingDir)
	searchTool, err := tools.NewSearchFilesTool(search.TextAdapter{Engine: searchEngine})
	if err != nil {
		return nil, err
	}

	registry.Register(readTool)
	registry.Register(listTool)
	registry.Register(writeTool)
	registry.Register(searchTool)
	return registry, nil
}

// subscribeEventLogger wires the Engine's event bus (§4.11) to the process
// logger, the one always-on observer of routing decisions, tool lifecycle
// and stream lifecycle events. It's the one concrete consumer this process
// ships; anything wanting richer handling (metrics export, persistence)
// subscribes the same way against engine.Events().
func subscribeEventLogger(engine *server.Engine, log *slog.Logger) {
	bus := engine.Events()
	bus.Subscribe(eventbus.TopicRoutingDecision, func(ctx context.Context, ev eventbus.Event) {
		log.Debug("routing decision", "decision", ev.Payload)
	})
	bus.Subscribe(eventbus.TopicToolStarted, func(ctx context.Context, ev eventbus.Event) {
		log.Debug("tool started", "event", ev.Payload)
	})
	bus.Subscribe(eventbus.TopicToolCompleted, func(ctx context.Context, ev eventbus.Event) {
		log.Debug("tool completed", "event", ev.Payload)
	})
	bus.Subscribe(eventbus.TopicIsolationViolation, func(ctx context.Context, ev eventbus.Event) {
		log.Warn("isolation violation", "event", ev.Payload)
	})
	bus.Subscribe(eventbus.TopicStreamCompleted, func(ctx context.Context, ev eventbus.Event) {
		log.Debug("stream completed", "event", ev.Payload)
	})
}

