package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/cache"
	"github.com/forgehq/forge/pkg/orcherr"
)

const (
	defaultSubprocessTimeout = 30 * time.Second
	defaultCacheTTL          = 60 * time.Second
	lowConfidenceThreshold   = 0.3
	maxFallbackAttempts      = 2
)

// Engine runs one Hybrid Search Core over a fixed workspace root.
type Engine struct {
	root              string
	cache             *cache.TTLCache[Result]
	processes         *processTracker
	vectorStore       VectorStore
	subprocessTimeout time.Duration
}

// Option customizes a newly built Engine.
type Option func(*Engine)

// WithVectorStore wires a semantic-strategy backend (§4.8 expansion).
func WithVectorStore(store VectorStore) Option {
	return func(e *Engine) { e.vectorStore = store }
}

// WithSubprocessTimeout overrides the default 30s ripgrep timeout.
func WithSubprocessTimeout(d time.Duration) Option {
	return func(e *Engine) { e.subprocessTimeout = d }
}

// New builds an Engine rooted at root.
func New(root string, opts ...Option) *Engine {
	e := &Engine{
		root:              root,
		cache:             cache.New[Result](defaultCacheTTL),
		processes:         newProcessTracker(),
		subprocessTimeout: defaultSubprocessTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs the full pipeline of §4.8: cache lookup, sanitization,
// strategy selection, execution, parsing, fallback, and result shaping.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	start := time.Now()

	key := cacheKey(q)
	if cached, ok := e.cache.Get(key); ok {
		cached.Metadata.CacheHit = true
		return cached, nil
	}

	sanitized, warnings, err := sanitize(q)
	if err != nil {
		return Result{}, err
	}

	strategy := selectStrategy(sanitized)
	docs, confidence, runErr := e.run(ctx, strategy, sanitized)
	fallbackUsed := false

	if runErr != nil || (len(docs) == 0 && confidence < lowConfidenceThreshold) {
		chain := fallbackChain(strategy)
		if len(chain) > maxFallbackAttempts {
			chain = chain[:maxFallbackAttempts]
		}
		for _, fb := range chain {
			fallbackUsed = true
			fbDocs, fbConfidence, fbErr := e.run(ctx, fb, sanitized)
			docs, confidence, runErr, strategy = fbDocs, fbConfidence, fbErr, fb
			if fbErr == nil && (len(fbDocs) > 0 || fbConfidence >= lowConfidenceThreshold) {
				break
			}
		}
	}

	if runErr != nil {
		return Result{}, orcherr.Wrap(orcherr.CodeSearchTimeout, "all search strategies failed", runErr)
	}

	docs = shapeResults(docs, sanitized.MaxResults)

	result := Result{
		Documents: docs,
		Metadata: Metadata{
			Strategy:      strategy,
			Confidence:    confidence,
			ExecutionTime: time.Since(start),
			CacheHit:      false,
			FallbackUsed:  fallbackUsed,
			Warnings:      warnings,
			Statistics:    map[string]any{"result_count": len(docs)},
		},
	}
	e.cache.Set(key, result)
	return result, nil
}

// SearchText runs a free-text query with no structured QueryType; it is
// what TextAdapter.Search calls to satisfy pkg/tools.Searcher, the thin
// adapter the searchFiles tool delegates to.
func (e *Engine) SearchText(ctx context.Context, query, path string) (string, error) {
	q := Query{Text: query, Type: QueryGeneral}
	if path != "" {
		q.Context.FileTypes = nil // path scoping is a future refinement; root stays fixed for now
	}
	result, err := e.Search(ctx, q)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, d := range result.Documents {
		b.WriteString(d.Path)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(d.Line))
		b.WriteString(": ")
		b.WriteString(d.Content)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func (e *Engine) run(ctx context.Context, s Strategy, q Query) ([]Document, float64, error) {
	switch s {
	case StrategyLiteral:
		return e.runRipgrep(ctx, q, true)
	case StrategyRegex:
		return e.runRipgrep(ctx, q, false)
	case StrategyStructural:
		return e.runStructural(ctx, q)
	case StrategySemantic:
		return e.runSemantic(ctx, q)
	default:
		return nil, 0, orcherr.New(orcherr.CodeValidationError, "unknown search strategy: "+string(s))
	}
}

// Shutdown guarantees every subprocess this engine ever spawned has
// terminated (§4.8's process-hygiene requirement).
func (e *Engine) Shutdown() {
	e.processes.Shutdown()
}

// shapeResults deduplicates by (path, content), caps the result count, and
// caps individual content lengths (§4.8 step 5).
func shapeResults(docs []Document, maxResults int) []Document {
	const maxContentLength = 500
	seen := make(map[string]bool, len(docs))
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		content := strings.TrimRight(d.Content, " \t")
		if len(content) > maxContentLength {
			content = content[:maxContentLength] + "..."
		}
		dedupeKey := d.Path + "\x00" + content
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true
		out = append(out, Document{Path: d.Path, Line: d.Line, Content: content})
		if len(out) >= maxResults {
			break
		}
	}
	return out
}

func cacheKey(q Query) string {
	var b strings.Builder
	b.WriteString(string(q.Type))
	b.WriteByte('|')
	b.WriteString(q.Text)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(q.MaxResults))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(q.Regex))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(q.CaseSensitive))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(q.WholeWord))
	b.WriteByte('|')
	b.WriteString(strings.Join(q.Context.FileTypes, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(q.Context.ExcludePatterns, ","))
	return b.String()
}
