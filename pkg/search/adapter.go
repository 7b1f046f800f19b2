package search

import "context"

// TextAdapter adapts Engine to pkg/tools.Searcher's plain (query, path)
// signature, letting the searchFiles tool dispatch into the Hybrid Search
// Core without pkg/tools importing pkg/search.
type TextAdapter struct {
	Engine *Engine
}

func (a TextAdapter) Search(ctx context.Context, query, path string) (string, error) {
	return a.Engine.SearchText(ctx, query, path)
}
