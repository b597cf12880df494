package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CouncilChain/internal/council"
)

// Ledger 将议会结论转换为台账记录并写入仓库。
// 它满足评审处理器的 VerdictSink 接口。
type Ledger struct {
	repo VerdictRepository
}

// NewLedger 构造台账写入器。
func NewLedger(repo VerdictRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Record 落盘一次完整的议会结论，包含每位评审员的投票与链上快照。
func (l *Ledger) Record(ctx context.Context, reviewID string, result *council.ConsensusResult, chainID, blockNumber string) error {
	if l == nil || l.repo == nil {
		return fmt.Errorf("台账仓库未初始化")
	}
	if result == nil {
		return fmt.Errorf("议会结论不能为空")
	}

	votes, err := json.Marshal(result.Votes)
	if err != nil {
		return fmt.Errorf("序列化投票记录失败: %w", err)
	}

	record := VerdictRecord{
		ReviewID:      reviewID,
		ContentType:   string(result.ContentType),
		Approved:      result.Approved,
		ApprovalCount: result.ApprovalCount,
		RejectCount:   result.RejectionCount,
		ApprovalRate:  result.ApprovalRate,
		RiskLevel:     string(result.Security.RiskLevel),
		Votes:         string(votes),
		ChainID:       chainID,
		BlockNumber:   blockNumber,
		CreatedAt:     time.Now().Unix(),
	}
	return l.repo.Save(ctx, record)
}
