package search

import (
	"context"

	chromem "github.com/philippgille/chromem-go"

	"github.com/forgehq/forge/pkg/orcherr"
)

const semanticConfidence = 0.7

// VectorStore is the interface the semantic strategy queries. chromemStore
// is the only implementation wired in this module — an embedded, in-process
// store with no external service dependency, fitting the orchestrator's
// local-first charter. The interface exists so a remote-backed store could
// be substituted without touching Engine.
type VectorStore interface {
	Index(ctx context.Context, id, content string, metadata map[string]string) error
	Query(ctx context.Context, text string, maxResults int) ([]Document, error)
}

// chromemStore wraps a single github.com/philippgille/chromem-go
// collection.
type chromemStore struct {
	collection *chromem.Collection
}

// NewChromemStore builds a VectorStore backed by chromem-go, embedding
// documents and queries through an Ollama-compatible embedding endpoint —
// the same local-model backend family the orchestrator's provider adapters
// already target (pkg/provider/localmodel), so indexing never leaves the
// machine.
func NewChromemStore(name, embeddingModel, ollamaBaseURL string) (VectorStore, error) {
	db := chromem.NewDB()
	embed := chromem.NewEmbeddingFuncOllama(embeddingModel, ollamaBaseURL)
	collection, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, err
	}
	return &chromemStore{collection: collection}, nil
}

func (s *chromemStore) Index(ctx context.Context, id, content string, metadata map[string]string) error {
	return s.collection.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: metadata})
}

func (s *chromemStore) Query(ctx context.Context, text string, maxResults int) ([]Document, error) {
	if maxResults <= 0 || maxResults > s.collection.Count() {
		maxResults = s.collection.Count()
	}
	if maxResults == 0 {
		return nil, nil
	}
	results, err := s.collection.Query(ctx, text, maxResults, nil, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{Path: r.Metadata["path"], Content: r.Content}
	}
	return docs, nil
}

// runSemantic dispatches to the configured VectorStore, or fails fast if
// none was wired (the caller's fallback chain then tries structural and
// literal search instead).
func (e *Engine) runSemantic(ctx context.Context, q Query) ([]Document, float64, error) {
	if e.vectorStore == nil {
		return nil, 0, orcherr.New(orcherr.CodeSearchTimeout, "no semantic backend configured")
	}
	docs, err := e.vectorStore.Query(ctx, q.Text, q.MaxResults)
	if err != nil {
		return nil, 0, err
	}
	return docs, semanticConfidence, nil
}
