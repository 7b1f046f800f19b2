package search

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const structuralConfidence = 0.6

// structuralPatterns maps a QueryType to the regex template teacher's
// grep_search.go would have hand-written per call site; this generalizes
// that into a declarative table so Engine.runStructural stays one pass over
// the tree regardless of query type.
var structuralPatterns = map[QueryType]string{
	QueryFunction: `(?i)(func|function|def)\s+%s\b`,
	QueryClass:    `(?i)(class|struct|type)\s+%s\b`,
	QueryImport:   `(?i)(import|require|use)\s+.*%s`,
	QueryTodo:     `(?i)(TODO|FIXME|XXX)[:\s].*%s`,
	QueryError:    `(?i)(error|err|exception).*%s`,
}

// runStructural walks e.root in-process, applying a type-aware regex built
// from structuralPatterns. Falls back to a plain substring match on Query
// types with no declared template.
func (e *Engine) runStructural(ctx context.Context, q Query) ([]Document, float64, error) {
	template, ok := structuralPatterns[q.Type]
	pattern := regexp.QuoteMeta(q.Text)
	if ok {
		pattern = template
		if strings.Contains(template, "%s") {
			pattern = strings.Replace(template, "%s", regexp.QuoteMeta(q.Text), 1)
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, 0, err
	}

	var docs []Document
	walkErr := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole walk
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(q.Context.FileTypes) > 0 && !hasExtension(path, q.Context.FileTypes) {
			return nil
		}
		if excluded(path, q.Context.ExcludePatterns) {
			return nil
		}
		matches, err := grepFile(re, path)
		if err != nil {
			return nil
		}
		docs = append(docs, matches...)
		if len(docs) >= q.MaxResults {
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return docs, structuralConfidence, walkErr
	}
	return docs, structuralConfidence, nil
}

func shouldSkipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".cache":
		return true
	default:
		return false
	}
}

func hasExtension(path string, exts []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func excluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := filepath.Match(p, filepath.Base(path)); matched {
			return true
		}
	}
	return false
}

func grepFile(re *regexp.Regexp, path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if re.MatchString(text) {
			docs = append(docs, Document{Path: path, Line: line, Content: text})
		}
	}
	return docs, scanner.Err()
}
