package reasoning

import "testing"

func TestParseAction_StrictJSON(t *testing.T) {
	a, ok := ParseAction(`{"thought":"need to list","tool":"listFiles","toolInput":{"path":"/tmp"}}`)
	if !ok {
		t.Fatal("expected strict JSON to parse")
	}
	if a.Tool != "listFiles" || a.ToolInput["path"] != "/tmp" {
		t.Fatalf("unexpected action: %+v", a)
	}
}

func TestParseAction_BalancedJSONInProse(t *testing.T) {
	text := "I'll check the files now.\n```json\n{\"thought\":\"x\",\"tool\":\"readFile\",\"toolInput\":{\"path\":\"a.go\"}}\n```\nDone."
	a, ok := ParseAction(text)
	if !ok {
		t.Fatal("expected balanced-JSON extraction to parse")
	}
	if a.Tool != "readFile" {
		t.Fatalf("Tool = %q, want readFile", a.Tool)
	}
}

func TestParseAction_Regex(t *testing.T) {
	text := `thought: "looking around" tool: "listFiles" not valid json at all`
	a, ok := ParseAction(text)
	if !ok {
		t.Fatal("expected regex tier to parse")
	}
	if a.Tool != "listFiles" {
		t.Fatalf("Tool = %q, want listFiles", a.Tool)
	}
}

func TestParseAction_Heuristic(t *testing.T) {
	a, ok := ParseAction("Let me list files in the current directory to see what's there.")
	if !ok {
		t.Fatal("expected heuristic tier to parse")
	}
	if a.Tool != "listFiles" {
		t.Fatalf("Tool = %q, want listFiles", a.Tool)
	}
}

func TestParseAction_TypoCorrection(t *testing.T) {
	a, ok := ParseAction(`{"tool":"searchhFile","toolInput":{}}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if a.Tool != "searchFiles" {
		t.Fatalf("Tool = %q, want searchFiles after typo correction", a.Tool)
	}
}

func TestParseAction_FinalAnswerWithoutAnswerSynthesizesDefault(t *testing.T) {
	a, ok := ParseAction(`{"tool":"final_answer"}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if a.Answer != "Analysis completed." {
		t.Errorf("Answer = %q, want synthesized default", a.Answer)
	}
}

func TestParseAction_ArgumentDefaults(t *testing.T) {
	a, ok := ParseAction(`{"tool":"listFiles"}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if a.ToolInput["path"] != "." || a.ToolInput["maxFiles"] != 50 {
		t.Fatalf("expected default args applied, got %+v", a.ToolInput)
	}
}

func TestParseAction_Unparseable(t *testing.T) {
	if _, ok := ParseAction("                   "); ok {
		t.Fatal("expected whitespace-only text to fail to parse")
	}
}
