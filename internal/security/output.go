package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	xerrors "CouncilChain/internal/errors"
	"CouncilChain/internal/llm"
)

// Vote 表示一位评审员通过校验后的最终投票。
type Vote struct {
	EvaluatorID string    `json:"evaluator_id"`
	Approved    bool      `json:"approved"`
	Reasoning   string    `json:"reasoning"`
	Backend     string    `json:"backend"`
	CastAt      time.Time `json:"cast_at"`
}

// maxReasoningLength 是投票理由在消毒后允许的最大长度（按字符计）。
const maxReasoningLength = 500

// redactionPatterns 匹配需要打码而非拒绝的危险片段。
var redactionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script[^>]*>`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)data\s*:\s*text/html`),
	regexp.MustCompile(`(?i)\bon(load|click|error|mouseover)\s*=`),
}

// ValidateCouncilOutput 将模型后端的原始输出强制转换为合法投票。
// 结论字段支持布尔、字符串与数值编码；理由必须是字符串。
// 任何无法救回的字段都会导致整体失败，绝不返回半校验的数据。
func (g *Gateway) ValidateCouncilOutput(evaluatorID, backend string, raw *llm.Response) (Vote, error) {
	if raw == nil {
		return Vote{}, xerrors.New(CodeOutputValidation, "模型输出为空")
	}

	approved, err := coerceVerdict(raw.Verdict)
	if err != nil {
		return Vote{}, xerrors.Wrap(CodeOutputValidation, err, fmt.Sprintf("评审员 %s 的结论无法解析", evaluatorID))
	}

	reasoning := sanitizeReasoning(raw.Reasoning)
	if reasoning == "" {
		return Vote{}, xerrors.New(CodeOutputValidation, fmt.Sprintf("评审员 %s 未给出理由", evaluatorID))
	}

	return Vote{
		EvaluatorID: evaluatorID,
		Approved:    approved,
		Reasoning:   reasoning,
		Backend:     backend,
		CastAt:      time.Now(),
	}, nil
}

// coerceVerdict 将布尔式编码统一为 bool。
func coerceVerdict(verdict any) (bool, error) {
	switch v := verdict.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "approve", "approved", "1":
			return true, nil
		case "false", "no", "reject", "rejected", "0":
			return false, nil
		}
		return false, fmt.Errorf("无法识别的结论编码: %q", v)
	case float64:
		if v == 1 {
			return true, nil
		}
		if v == 0 {
			return false, nil
		}
		return false, fmt.Errorf("无法识别的结论数值: %v", v)
	case json.Number:
		return coerceVerdict(v.String())
	case nil:
		return false, fmt.Errorf("缺少结论字段")
	default:
		return false, fmt.Errorf("不支持的结论类型: %T", verdict)
	}
}

// sanitizeReasoning 打码危险片段、剔除控制字符并截断到长度预算。
func sanitizeReasoning(reasoning string) string {
	cleaned := reasoning
	for _, pattern := range redactionPatterns {
		cleaned = pattern.ReplaceAllString(cleaned, "[redacted]")
	}

	var builder strings.Builder
	builder.Grow(len(cleaned))
	for _, r := range cleaned {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
	}
	cleaned = builder.String()

	if runes := []rune(cleaned); len(runes) > maxReasoningLength {
		cleaned = string(runes[:maxReasoningLength])
	}
	return strings.TrimSpace(cleaned)
}
