package review

import "context"

// RecoveryHandler 定义了评审执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 VerdictSummary 将作为降级结论写入工单；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, job *Job, cause error) (*VerdictSummary, error)
}
