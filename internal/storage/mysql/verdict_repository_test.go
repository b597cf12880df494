package mysql

import (
	"context"
	"strings"
	"testing"
	"time"

	"CouncilChain/internal/classify"
	"CouncilChain/internal/council"
	"CouncilChain/internal/security"
)

func TestMemoryVerdictRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewMemoryVerdictRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	record := VerdictRecord{
		ReviewID:      "rev-1",
		ContentType:   "code-repository",
		Approved:      true,
		ApprovalCount: 3,
		RejectCount:   1,
		ApprovalRate:  0.75,
		RiskLevel:     "low",
		Votes:         `[{"evaluator_id":"archivist","approved":true}]`,
		ChainID:       "11155111",
		BlockNumber:   "0x10",
		CreatedAt:     time.Now().Unix(),
	}
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetByReviewID(ctx, "rev-1")
	if err != nil {
		t.Fatalf("get by review id failed: %v", err)
	}
	if got.ApprovalCount != 3 || !got.Approved || got.BlockNumber != "0x10" {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.GetByReviewID(ctx, "missing"); err != ErrVerdictNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// 重新加载验证落盘。
	reloaded, err := NewMemoryVerdictRepository(dir)
	if err != nil {
		t.Fatalf("reload repo: %v", err)
	}
	list, err := reloaded.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest: %v", err)
	}
	if len(list) != 1 || list[0].ReviewID != "rev-1" {
		t.Fatalf("unexpected reloaded records: %+v", list)
	}
}

func TestLedgerRecordsConsensus(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryVerdictRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	ledger := NewLedger(repo)

	result := &council.ConsensusResult{
		SubmissionID:   "sub-1",
		ContentType:    classify.TypeCodeRepository,
		Approved:       true,
		ApprovalCount:  2,
		RejectionCount: 1,
		ApprovalRate:   2.0 / 3.0,
		EvaluatorCount: 3,
		Votes: []security.Vote{
			{EvaluatorID: "archivist", Approved: true, Reasoning: "结构清晰", Backend: "openai"},
			{EvaluatorID: "arbiter", Approved: false, Reasoning: "缺少测试", Backend: "localbridge"},
		},
		Security: council.SecuritySummary{RiskLevel: security.RiskLow},
	}

	if err := ledger.Record(context.Background(), "rev-9", result, "11155111", "0x4a21"); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := repo.GetByReviewID(context.Background(), "rev-9")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.Approved || got.ApprovalCount != 2 || got.RiskLevel != "low" {
		t.Fatalf("unexpected ledger record: %+v", got)
	}
	if !strings.Contains(got.Votes, "archivist") || !strings.Contains(got.Votes, "arbiter") {
		t.Fatalf("expected serialized votes, got %s", got.Votes)
	}
	if got.ChainID != "11155111" || got.BlockNumber != "0x4a21" {
		t.Fatalf("chain snapshot missing from ledger record: %+v", got)
	}
}
