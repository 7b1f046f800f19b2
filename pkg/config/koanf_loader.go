package config

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/forgehq/forge/pkg/logging"
	"github.com/forgehq/forge/pkg/orcherr"
)

// Loader reads, expands, validates, and unmarshals the §6.4 configuration
// surface from a single YAML file, optionally watching it for changes.
type Loader struct {
	koanf    *koanf.Koanf
	path     string
	watch    bool
	onChange func(*Config)
	log      *slog.Logger
}

// LoaderOptions controls how a Loader is constructed.
type LoaderOptions struct {
	// Path to a YAML config file. Optional — an empty Path leaves Default()
	// values in place; a non-empty Path that cannot be loaded is a
	// configuration error.
	Path string
	// Watch reloads Path on write, invoking OnChange with the new Config.
	// Reload failures are logged and the prior Config is kept in force.
	Watch    bool
	OnChange func(*Config)
}

// NewLoader constructs a Loader. It does not read Path yet; call Load.
func NewLoader(opts LoaderOptions) *Loader {
	return &Loader{
		koanf:    koanf.New("."),
		path:     opts.Path,
		watch:    opts.Watch,
		onChange: opts.OnChange,
		log:      logging.Get().With("component", "config"),
	}
}

// Load reads the configured file (if any) over top of Default(), expands
// environment variable references, rejects unknown keys, validates the
// result, and starts the optional file watch.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.loadOnce()
	if err != nil {
		return nil, err
	}
	if l.watch && l.path != "" {
		go l.watchFile()
	}
	return cfg, nil
}

func (l *Loader) loadOnce() (*Config, error) {
	k := koanf.New(".")

	defaults := structToMap(Default())
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, orcherr.Wrap(orcherr.CodeConfigurationError, "loading built-in defaults", err)
	}

	if l.path != "" {
		if err := k.Load(file.Provider(l.path), yaml.Parser()); err != nil {
			return nil, orcherr.Wrap(orcherr.CodeConfigurationError, fmt.Sprintf("reading config file %s", l.path), err)
		}
	}

	expanded, ok := ExpandEnvVarsInData(k.Raw()).(map[string]interface{})
	if !ok {
		return nil, orcherr.New(orcherr.CodeConfigurationError, "unexpected shape after environment expansion")
	}
	k = koanf.New(".")
	if err := k.Load(confmap.Provider(expanded, "."), nil); err != nil {
		return nil, orcherr.Wrap(orcherr.CodeConfigurationError, "reloading expanded config", err)
	}

	cfg := &Config{}
	decoderConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "koanf",
			ErrorUnused:      true,
			WeaklyTypedInput: true,
		},
	}
	if err := k.UnmarshalWithConf("", cfg, decoderConf); err != nil {
		return nil, orcherr.Wrap(orcherr.CodeConfigurationError, "unmarshaling config (unknown key?)", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.koanf = k
	return cfg, nil
}

func (l *Loader) watchFile() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.log.Error("config watch disabled, fsnotify init failed", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(l.path); err != nil {
		l.log.Error("config watch disabled, cannot watch file", "path", l.path, "error", err)
		return
	}

	for event := range watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		cfg, err := l.loadOnce()
		if err != nil {
			l.log.Error("config reload failed, keeping previous config", "error", err)
			continue
		}
		l.log.Info("config reloaded")
		if l.onChange != nil {
			l.onChange(cfg)
		}
	}
}

// structToMap renders Default()'s values as the same nested map shape a
// YAML file following §6.4's key names would produce, so defaults seed the
// koanf tree a loaded file then overlays.
func structToMap(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"router": map[string]interface{}{
			"strategy":       cfg.Router.Strategy,
			"fallback_chain": cfg.Router.FallbackChain,
			"max_retries":    cfg.Router.MaxRetries,
		},
		"executor": map[string]interface{}{
			"hybrid": map[string]interface{}{
				"escalation_threshold": cfg.Executor.Hybrid.EscalationThreshold,
			},
			"tool": map[string]interface{}{
				"max_concurrent_batch": cfg.Executor.Tool.MaxConcurrentBatch,
				"cache_ttl_seconds":    cfg.Executor.Tool.CacheTTLSeconds,
			},
		},
		"security": map[string]interface{}{
			"level":            cfg.Security.Level,
			"max_input_length": cfg.Security.MaxInputLength,
			"allowed_paths":    cfg.Security.AllowedPaths,
			"restricted_paths": cfg.Security.RestrictedPaths,
		},
		"search": map[string]interface{}{
			"default_timeout_ms": cfg.Search.DefaultTimeoutMS,
			"max_output_bytes":   cfg.Search.MaxOutputBytes,
		},
		"streaming": map[string]interface{}{
			"channel_capacity": cfg.Streaming.ChannelCapacity,
		},
		"isolation": map[string]interface{}{
			"default_level": cfg.Isolation.DefaultLevel,
		},
	}
}

// LoadConfig is the common-case entry point: load from path (or pure
// defaults if path is empty), no watch.
func LoadConfig(path string) (*Config, error) {
	return NewLoader(LoaderOptions{Path: path}).Load()
}
