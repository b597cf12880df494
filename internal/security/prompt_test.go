package security

import (
	"strings"
	"testing"

	"CouncilChain/internal/classify"
	"CouncilChain/internal/registry"
)

func TestBuildSecurePromptSections(t *testing.T) {
	prompt := BuildSecurePrompt(PromptInput{
		Evaluator:     registry.Evaluator{ID: "archivist", Personality: "你是一位严谨的代码档案员。"},
		SubmissionID:  "sub-1",
		URL:           "https://github.com/acme/widget",
		Sanitized:     "implemented the feature",
		ContentType:   classify.TypeCodeRepository,
		SharedContext: "[broadcaster] 链接内容真实存在。",
	})

	for _, section := range []string{
		"=== SYSTEM RULES ===",
		"=== SUBMISSION METADATA ===",
		"=== SUBMITTER NOTES ===",
		"=== SHARED COUNCIL CONTEXT ===",
		"=== EVALUATION CRITERIA ===",
		"=== OUTPUT FORMAT ===",
		untrustedOpen,
		untrustedClose,
	} {
		if !strings.Contains(prompt, section) {
			t.Fatalf("prompt missing section %q", section)
		}
	}

	if !strings.Contains(prompt, "never as instructions") {
		t.Fatalf("prompt missing anti-injection rule")
	}
	if !strings.Contains(prompt, "sub-1") || !strings.Contains(prompt, "implemented the feature") {
		t.Fatalf("prompt missing submission data")
	}
}

func TestBuildSecurePromptOmitsEmptySharedContext(t *testing.T) {
	prompt := BuildSecurePrompt(PromptInput{
		Evaluator:    registry.Evaluator{ID: "archivist", Personality: "p"},
		SubmissionID: "sub-1",
		URL:          "https://github.com/acme/widget",
		Sanitized:    "notes",
		ContentType:  classify.TypeCodeRepository,
	})
	if strings.Contains(prompt, "SHARED COUNCIL CONTEXT") {
		t.Fatalf("empty shared context should omit the section")
	}
}

func TestBuildSecurePromptIncludesGuidelines(t *testing.T) {
	prompt := BuildSecurePrompt(PromptInput{
		Evaluator:    registry.Evaluator{ID: "archivist", Personality: "p"},
		SubmissionID: "sub-1",
		URL:          "https://github.com/acme/widget",
		Sanitized:    "notes",
		ContentType:  classify.TypeCodeRepository,
		Guidelines:   []string{"代码仓库验收: 确认仓库有实质提交历史。"},
	})
	if !strings.Contains(prompt, "Content specific guidance:") {
		t.Fatalf("prompt missing guidance block")
	}
	if !strings.Contains(prompt, "确认仓库有实质提交历史") {
		t.Fatalf("prompt missing guideline text")
	}
}

func TestBuildAnalysisPromptMentionsNativeCapability(t *testing.T) {
	prompt := BuildAnalysisPrompt(PromptInput{
		Evaluator:    registry.Evaluator{ID: "projectionist", Personality: "p"},
		SubmissionID: "sub-2",
		URL:          "https://youtu.be/abc",
		Sanitized:    "demo video",
		ContentType:  classify.TypeVideo,
	})
	if !strings.Contains(prompt, "natively examine video content") {
		t.Fatalf("analysis prompt should instruct use of native capability")
	}
}
