package registry

import (
	"testing"

	"CouncilChain/internal/classify"
)

func TestNewDefaultPanel(t *testing.T) {
	reg, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Size() != 4 {
		t.Fatalf("expected 4 built-in evaluators, got %d", reg.Size())
	}
	if _, ok := reg.Get("archivist"); !ok {
		t.Fatalf("archivist missing from default panel")
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	evaluators := []Evaluator{
		{ID: "a", Backend: "openai"},
		{ID: "a", Backend: "anthropic"},
	}
	if _, err := New(evaluators); err == nil {
		t.Fatalf("expected error for duplicate evaluator id")
	}
}

func TestSelectForContentByAffinity(t *testing.T) {
	reg, err := New(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selected := reg.SelectForContent(classify.TypeCodeRepository)
	if len(selected) == 0 {
		t.Fatalf("expected at least one code-affine evaluator")
	}
	for _, evaluator := range selected {
		if !evaluator.HasAffinity(classify.TypeCodeRepository) {
			t.Fatalf("evaluator %s selected without matching affinity", evaluator.ID)
		}
	}
}

func TestSelectForContentFallbackNeverEmpty(t *testing.T) {
	evaluators := []Evaluator{
		{ID: "solo", Backend: "openai", Affinities: []classify.ContentType{classify.TypeVideo}},
	}
	reg, err := New(evaluators)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	selected := reg.SelectForContent(classify.TypeCodeRepository)
	if len(selected) == 0 {
		t.Fatalf("fallback subset must never be empty")
	}
	if selected[0].ID != "solo" {
		t.Fatalf("expected fallback to first evaluator, got %s", selected[0].ID)
	}
}
