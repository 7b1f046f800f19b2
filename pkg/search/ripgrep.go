package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/forgehq/forge/pkg/orcherr"
)

const (
	literalConfidence = 0.95
	regexConfidence   = 0.85
)

// rgMatch mirrors the subset of ripgrep's --json "match" event this engine
// consumes.
type rgMatch struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

// runRipgrep executes ripgrep against e.root as a subprocess, parsing its
// --json output. literal selects -F (fixed-string) matching; otherwise the
// query text is passed through as a regex.
func (e *Engine) runRipgrep(ctx context.Context, q Query, literal bool) ([]Document, float64, error) {
	args := []string{"--json", "--max-count", "1000"}
	if literal {
		args = append(args, "-F")
	}
	if !q.CaseSensitive {
		args = append(args, "-i")
	}
	if q.WholeWord {
		args = append(args, "-w")
	}
	for _, ft := range q.Context.FileTypes {
		args = append(args, "-g", "*."+ft)
	}
	for _, ex := range q.Context.ExcludePatterns {
		args = append(args, "-g", "!"+ex)
	}
	args = append(args, "-e", q.Text, e.root)

	runCtx, cancel := context.WithTimeout(ctx, e.subprocessTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "rg", args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	_, unregister := e.processes.register(cmd)
	defer unregister()

	err := cmd.Run()
	// ripgrep exits 1 (not an error) when there are simply no matches.
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, literalConfidence, nil
		}
		return nil, 0, orcherr.Wrap(orcherr.CodeSearchTimeout, "ripgrep invocation failed", err)
	}

	docs, parseErr := parseRipgrepJSON(stdout.Bytes())
	if parseErr != nil {
		return nil, 0, orcherr.Wrap(orcherr.CodeSearchTimeout, "failed to parse ripgrep output", parseErr)
	}

	confidence := regexConfidence
	if literal {
		confidence = literalConfidence
	}
	return docs, confidence, nil
}

func parseRipgrepJSON(raw []byte) ([]Document, error) {
	var docs []Document
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var m rgMatch
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			continue // not every line is a "match" event; skip silently
		}
		if m.Type != "match" {
			continue
		}
		docs = append(docs, Document{
			Path:    m.Data.Path.Text,
			Line:    m.Data.LineNumber,
			Content: m.Data.Lines.Text,
		})
	}
	return docs, scanner.Err()
}
