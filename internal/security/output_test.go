package security

import (
	"strings"
	"testing"

	"CouncilChain/internal/llm"
)

func TestValidateCouncilOutputCoercion(t *testing.T) {
	gw := NewGateway()

	cases := []struct {
		name    string
		verdict any
		want    bool
	}{
		{"bool true", true, true},
		{"string true", "true", true},
		{"string yes", "yes", true},
		{"string false", "false", false},
		{"string zero", "0", false},
		{"float one", float64(1), true},
		{"float zero", float64(0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vote, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
				Verdict:   tc.verdict,
				Reasoning: "ok",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if vote.Approved != tc.want {
				t.Fatalf("verdict %v coerced to %v, want %v", tc.verdict, vote.Approved, tc.want)
			}
			if vote.EvaluatorID != "archivist" || vote.Backend != "openai" {
				t.Fatalf("vote attribution wrong: %+v", vote)
			}
		})
	}
}

func TestValidateCouncilOutputRejectsUncoercible(t *testing.T) {
	gw := NewGateway()
	for _, verdict := range []any{"maybe", float64(0.5), nil, []string{"true"}} {
		if _, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
			Verdict:   verdict,
			Reasoning: "ok",
		}); err == nil {
			t.Fatalf("expected error for verdict %v", verdict)
		}
	}
}

func TestValidateCouncilOutputRequiresReasoning(t *testing.T) {
	gw := NewGateway()
	if _, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
		Verdict:   true,
		Reasoning: "   ",
	}); err == nil {
		t.Fatalf("expected error for blank reasoning")
	}
}

func TestValidateCouncilOutputBoundsReasoning(t *testing.T) {
	gw := NewGateway()
	vote, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
		Verdict:   true,
		Reasoning: strings.Repeat("很长的理由。", 300),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len([]rune(vote.Reasoning)); got > maxReasoningLength {
		t.Fatalf("reasoning length %d exceeds bound", got)
	}
}

func TestValidateCouncilOutputRedactsMarkup(t *testing.T) {
	gw := NewGateway()
	vote, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
		Verdict:   true,
		Reasoning: `good work <script>steal()</script> javascript:run() done`,
	})
	if err != nil {
		t.Fatalf("redaction must not reject the vote: %v", err)
	}
	lowered := strings.ToLower(vote.Reasoning)
	if strings.Contains(lowered, "<script") || strings.Contains(lowered, "javascript:") {
		t.Fatalf("dangerous markup survived redaction: %q", vote.Reasoning)
	}
	if !strings.Contains(vote.Reasoning, "[redacted]") {
		t.Fatalf("expected redaction marker in %q", vote.Reasoning)
	}
}

func TestValidateCouncilOutputStripsControlCharacters(t *testing.T) {
	gw := NewGateway()
	vote, err := gw.ValidateCouncilOutput("archivist", "openai", &llm.Response{
		Verdict:   false,
		Reasoning: "line\x07one\x1btwo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.ContainsAny(vote.Reasoning, "\x07\x1b") {
		t.Fatalf("control characters survived: %q", vote.Reasoning)
	}
}
