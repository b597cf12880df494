package llm

import "testing"

func TestParseDecisionStrictJSON(t *testing.T) {
	resp, err := ParseDecision(`{"verdict": true, "reasoning": "solid work"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Verdict != true {
		t.Fatalf("unexpected verdict: %v", resp.Verdict)
	}
	if resp.Reasoning != "solid work" {
		t.Fatalf("unexpected reasoning: %q", resp.Reasoning)
	}
}

func TestParseDecisionFencedBlock(t *testing.T) {
	content := "Here is my answer:\n```json\n{\"verdict\": \"false\", \"reasoning\": \"no tests\"}\n```\nThanks."
	resp, err := ParseDecision(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Verdict != "false" {
		t.Fatalf("unexpected verdict: %v", resp.Verdict)
	}
}

func TestParseDecisionBraceSubstring(t *testing.T) {
	content := `After careful review I conclude {"verdict": true, "reasoning": "ships {with} tests"} as stated.`
	resp, err := ParseDecision(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Verdict != true {
		t.Fatalf("unexpected verdict: %v", resp.Verdict)
	}
	if resp.Reasoning != "ships {with} tests" {
		t.Fatalf("unexpected reasoning: %q", resp.Reasoning)
	}
}

func TestParseDecisionRegexFallback(t *testing.T) {
	content := `My verdict is true because the "repository contains working code".`
	resp, err := ParseDecision(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Verdict != "true" {
		t.Fatalf("unexpected verdict: %v", resp.Verdict)
	}
	if resp.Reasoning != "repository contains working code" {
		t.Fatalf("unexpected reasoning: %q", resp.Reasoning)
	}
}

func TestParseDecisionUnparsable(t *testing.T) {
	for _, content := range []string{"", "I cannot decide.", "{\"reasoning\": \"no verdict\"}"} {
		if _, err := ParseDecision(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}
