// Package reasoning implements the ReAct Loop (C7): a Planning/Acting/
// Observing state machine driven by a tolerant, four-tier output parser.
// The parser's layered fallback (strict JSON, balanced-brace extraction,
// regex, intent heuristics) and the typo-correction table are grounded on
// the tolerant-parsing posture of teacher's
// pkg/reasoning/chain_of_thought_strategy.go and the defensive type
// coercion in pkg/tools/result_helpers.go, generalized from teacher's
// native-function-calling strategy to a text-parsed one.
package reasoning

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Action is a parsed {thought, tool, tool_input} triple.
type Action struct {
	Thought   string
	Tool      string
	ToolInput map[string]any
	Answer    string // populated for the final_answer tool
}

// FinalAnswerTool is the terminal tool name (§4.6: "Any -> Terminal: tool is
// final_answer").
const FinalAnswerTool = "final_answer"

// typoCorrections maps common model-generated tool-name typos to the
// canonical name (§4.6).
var typoCorrections = map[string]string{
	"searchhFile":    "searchFiles",
	"searchFile":     "searchFiles",
	"search_file":    "searchFiles",
	"final-answer":   FinalAnswerTool,
	"finalAnswer":    FinalAnswerTool,
	"final answer":   FinalAnswerTool,
	"readfile":       "readFile",
	"read_file":      "readFile",
	"listfiles":      "listFiles",
	"list_files":     "listFiles",
}

func correctToolName(name string) string {
	if corrected, ok := typoCorrections[name]; ok {
		return corrected
	}
	return name
}

// argumentDefaults supplies per-tool default arguments when the model omits
// them (§4.6: "path := \".\" for directory listing, maxFiles := 50").
var argumentDefaults = map[string]map[string]any{
	"listFiles": {"path": ".", "maxFiles": 50},
}

func applyArgumentDefaults(tool string, args map[string]any) map[string]any {
	defaults, ok := argumentDefaults[tool]
	if !ok {
		return args
	}
	if args == nil {
		args = make(map[string]any, len(defaults))
	}
	for k, v := range defaults {
		if _, present := args[k]; !present {
			args[k] = v
		}
	}
	return args
}

type strictDoc struct {
	Thought   string         `json:"thought"`
	Tool      string         `json:"tool"`
	ToolInput map[string]any `json:"toolInput"`
	Answer    string         `json:"answer"`
}

var (
	thoughtRe = regexp.MustCompile(`(?i)"?thought"?\s*[:=]\s*"([^"]*)"`)
	toolRe    = regexp.MustCompile(`(?i)"?tool"?\s*[:=]\s*"([^"]*)"`)
	answerRe  = regexp.MustCompile(`(?i)"?answer"?\s*[:=]\s*"([^"]*)"`)
)

// ParseAction runs the four-tier parser over a model's raw text output.
// ok is false only when every tier fails to extract a usable tool name.
func ParseAction(text string) (Action, bool) {
	if a, ok := parseStrictJSON(text); ok {
		return finalize(a), true
	}
	if a, ok := parseBalancedJSON(text); ok {
		return finalize(a), true
	}
	if a, ok := parseRegex(text); ok {
		return finalize(a), true
	}
	if a, ok := parseHeuristics(text); ok {
		return finalize(a), true
	}
	return Action{}, false
}

func finalize(a Action) Action {
	a.Tool = correctToolName(a.Tool)
	a.ToolInput = applyArgumentDefaults(a.Tool, a.ToolInput)
	if a.Tool == FinalAnswerTool && a.Answer == "" {
		a.Answer = "Analysis completed."
	}
	return a
}

func parseStrictJSON(text string) (Action, bool) {
	var doc strictDoc
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &doc); err != nil {
		return Action{}, false
	}
	if doc.Tool == "" {
		return Action{}, false
	}
	return Action{Thought: doc.Thought, Tool: doc.Tool, ToolInput: doc.ToolInput, Answer: doc.Answer}, true
}

// parseBalancedJSON scans for the first brace-balanced JSON object embedded
// anywhere in the message body (tier 2: strict parse failed because the
// model wrapped JSON in prose or a code fence).
func parseBalancedJSON(text string) (Action, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return Action{}, false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// inside a string literal, brace characters don't count
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return parseStrictJSON(text[start : i+1])
			}
		}
	}
	return Action{}, false
}

func parseRegex(text string) (Action, bool) {
	toolMatch := toolRe.FindStringSubmatch(text)
	if toolMatch == nil {
		return Action{}, false
	}
	a := Action{Tool: toolMatch[1]}
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		a.Thought = m[1]
	}
	if m := answerRe.FindStringSubmatch(text); m != nil {
		a.Answer = m[1]
	}
	return a, true
}

// heuristic maps a substring pattern to a default tool invocation (§4.6
// tier 4).
type heuristic struct {
	pattern string
	tool    string
	input   map[string]any
}

var heuristics = []heuristic{
	{pattern: "list files", tool: "listFiles", input: map[string]any{"path": "."}},
	{pattern: "list directory", tool: "listFiles", input: map[string]any{"path": "."}},
	{pattern: "read file", tool: "readFile", input: map[string]any{}},
	{pattern: "final answer", tool: FinalAnswerTool, input: map[string]any{}},
	{pattern: "done", tool: FinalAnswerTool, input: map[string]any{}},
}

func parseHeuristics(text string) (Action, bool) {
	lower := strings.ToLower(text)
	for _, h := range heuristics {
		if strings.Contains(lower, h.pattern) {
			return Action{Thought: text, Tool: h.tool, ToolInput: h.input}, true
		}
	}
	return Action{}, false
}
