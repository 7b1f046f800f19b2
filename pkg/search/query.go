// Package search implements the Hybrid Search Core (C10): a single search
// operation over a workspace root that picks among literal, regex,
// structural, and semantic strategies with an automatic fallback chain. The
// literal/regex tier shells out to ripgrep, grounded on teacher's
// os/exec-based pkg/tools/command.go subprocess idiom, generalized from an
// arbitrary shell command to one pinned binary with process hygiene (each
// tracked ripgrep process, not its process group, is killed on shutdown).
// The structural tier generalizes the in-process regex file walk of
// teacher's pkg/tools/grep_search.go. The semantic tier is backed by an
// embedded chromem-go vector store (§4.8 expansion).
package search

import (
	"strings"
	"time"
)

// QueryType hints at the shape of what's being searched for, used by
// strategy selection.
type QueryType string

const (
	QueryFunction QueryType = "function"
	QueryClass    QueryType = "class"
	QueryImport   QueryType = "import"
	QueryPattern  QueryType = "pattern"
	QueryGeneral  QueryType = "general"
	QuerySemantic QueryType = "semantic"
	QueryTodo     QueryType = "todo"
	QueryError    QueryType = "error"
)

// Context narrows a Query to a language, a set of file extensions, or
// exclude globs.
type Context struct {
	Language        string
	FileTypes       []string
	ExcludePatterns []string
}

// Query is the input to Engine.Search.
type Query struct {
	Text          string
	Type          QueryType
	MaxResults    int
	Regex         bool
	CaseSensitive bool
	WholeWord     bool
	Context       Context
}

// Strategy is one of the backends Engine can dispatch a Query to.
type Strategy string

const (
	StrategyLiteral    Strategy = "literal"
	StrategyRegex      Strategy = "regex"
	StrategyStructural Strategy = "structural"
	StrategySemantic   Strategy = "semantic"
)

// Document is one search hit.
type Document struct {
	Path    string
	Line    int
	Content string
}

// Metadata describes how a Result was produced.
type Metadata struct {
	Strategy      Strategy
	Confidence    float64
	ExecutionTime time.Duration
	CacheHit      bool
	FallbackUsed  bool
	Warnings      []string
	Statistics    map[string]any
}

// Result is the shaped output of Engine.Search.
type Result struct {
	Documents []Document
	Metadata  Metadata
}

// selectStrategy maps query-type + content heuristics to an initial
// strategy (§4.8 step 3).
func selectStrategy(q Query) Strategy {
	switch q.Type {
	case QuerySemantic:
		return StrategySemantic
	case QueryFunction, QueryClass, QueryImport, QueryTodo, QueryError:
		return StrategyStructural
	case QueryPattern:
		return StrategyRegex
	default:
		if q.Regex || looksLikeRegex(q.Text) {
			return StrategyRegex
		}
		return StrategyLiteral
	}
}

func looksLikeRegex(s string) bool {
	return strings.ContainsAny(s, `.*+?[]()^$\|`)
}

// fallbackChain returns up to two strategies to retry, in order, when s
// fails or returns an empty, low-confidence result (§4.8 step 6).
func fallbackChain(s Strategy) []Strategy {
	switch s {
	case StrategySemantic:
		return []Strategy{StrategyStructural, StrategyLiteral}
	case StrategyStructural:
		return []Strategy{StrategyRegex, StrategyLiteral}
	case StrategyRegex:
		return []Strategy{StrategyLiteral}
	default:
		return nil
	}
}
