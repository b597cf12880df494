package security

import (
	xerrors "CouncilChain/internal/errors"
)

// 安全子系统的错误码。
const (
	CodeSecurityValidation xerrors.Code = "SECURITY_VALIDATION_FAILED"
	CodeOutputValidation   xerrors.Code = "OUTPUT_VALIDATION_FAILED"
	CodeFlowControlDenied  xerrors.Code = "FLOW_CONTROL_DENIED"
)

var (
	// ErrSecurityValidation 表示提交物在预校验阶段被判定为高风险，整个会话终止。
	ErrSecurityValidation = xerrors.New(CodeSecurityValidation, "submission failed security validation")
	// ErrOutputValidation 表示某个评审员的原始输出无法被校验为合法投票。
	ErrOutputValidation = xerrors.New(CodeOutputValidation, "council output failed validation")
	// ErrFlowControlDenied 表示信息流控制器拒绝了敏感动作。
	ErrFlowControlDenied = xerrors.New(CodeFlowControlDenied, "flow controller denied the action")
)

func init() {
	xerrors.Register(CodeSecurityValidation, xerrors.Attributes{
		Message:   "submission failed security validation",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeOutputValidation, xerrors.Attributes{
		Message:   "council output failed validation",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeFlowControlDenied, xerrors.Attributes{
		Message:   "flow controller denied the action",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}
