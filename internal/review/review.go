package review

import (
	stdErrors "errors"

	xerrors "CouncilChain/internal/errors"
)

// Status 表示评审工单在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// VerdictSummary 保存一次议会评审的最终结论。
type VerdictSummary struct {
	ContentType   string  `json:"content_type"`
	Approved      bool    `json:"approved"`
	ApprovalCount int     `json:"approval_count"`
	RejectCount   int     `json:"reject_count"`
	ApprovalRate  float64 `json:"approval_rate"`
	Summary       string  `json:"summary"`
	ChainID       string  `json:"chain_id"`
	BlockNumber   string  `json:"block_number"`
}

// Job 描述了排队等待议会评审的提交物。
type Job struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Notes      string          `json:"notes"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Status     Status          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *VerdictSummary `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

var (
	// ErrReviewNotFound 表示指定的评审工单不存在。
	ErrReviewNotFound = xerrors.New(CodeReviewNotFound, "review not found")
	// ErrReviewConflict 表示工单在当前状态下无法进行所请求的操作。
	ErrReviewConflict = xerrors.New(CodeReviewConflict, "review conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrReviewCompleted 表示工单已经得出结论。
	ErrReviewCompleted = xerrors.New(CodeReviewCompleted, "review already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrReviewExhausted 表示工单的重试次数已经耗尽。
	ErrReviewExhausted = xerrors.New(CodeReviewExhausted, "review retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeReviewNotFound   xerrors.Code = "REVIEW_NOT_FOUND"
	CodeReviewConflict   xerrors.Code = "REVIEW_CONFLICT"
	CodeReviewCompleted  xerrors.Code = "REVIEW_COMPLETED"
	CodeReviewExhausted  xerrors.Code = "REVIEW_RETRIES_EXHAUSTED"
	CodeReviewValidation xerrors.Code = "REVIEW_VALIDATION_FAILED"
	CodeReviewPublish    xerrors.Code = "REVIEW_PUBLISH_FAILED"
	CodeReviewProcessing xerrors.Code = "REVIEW_PROCESSING_FAILED"
	CodeReviewCompensate xerrors.Code = "REVIEW_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeReviewNotFound, xerrors.Attributes{
		Message:   "review not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeReviewConflict, xerrors.Attributes{
		Message:   "review conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeReviewCompleted, xerrors.Attributes{
		Message:   "review already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeReviewExhausted, xerrors.Attributes{
		Message:   "review retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeReviewValidation, xerrors.Attributes{
		Message:   "review validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeReviewPublish, xerrors.Attributes{
		Message:   "failed to publish review",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeReviewProcessing, xerrors.Attributes{
		Message:   "review execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeReviewCompensate, xerrors.Attributes{
		Message:   "review compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsReviewError 判断错误是否为统一评审错误。
func IsReviewError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrReviewNotFound) {
		return target == CodeReviewNotFound
	}
	if stdErrors.Is(err, ErrReviewConflict) {
		return target == CodeReviewConflict
	}
	if stdErrors.Is(err, ErrReviewCompleted) {
		return target == CodeReviewCompleted
	}
	if stdErrors.Is(err, ErrReviewExhausted) {
		return target == CodeReviewExhausted
	}
	return xerrors.CodeOf(err) == target
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的工单状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
