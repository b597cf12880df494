package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// rawDecision 是各后端约定的标准输出结构。
type rawDecision struct {
	Verdict   any    `json:"verdict"`
	Reasoning string `json:"reasoning"`
}

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	booleanPattern     = regexp.MustCompile(`(?i)\b(true|false)\b`)
	quotedPattern      = regexp.MustCompile(`"((?:[^"\\]|\\.){1,500})"`)
)

// ErrUnparsable 表示所有解析策略均告失败。
var ErrUnparsable = errors.New("无法从模型输出中解析结论")

// ParseDecision 将后端的原始文本解析为结构化结论。解析按固定的降级链
// 依次尝试：严格 JSON、围栏代码块、首个大括号子串、正则兜底。
// 可用性优先于严格性：只要任一策略成功即返回结果。
func ParseDecision(content string) (*Response, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrUnparsable
	}

	// 策略一：整体严格解析。
	if resp, ok := tryStrictJSON(content); ok {
		return resp, nil
	}

	// 策略二：提取围栏代码块。
	if block := fencedBlockPattern.FindStringSubmatch(content); len(block) == 2 {
		if resp, ok := tryStrictJSON(strings.TrimSpace(block[1])); ok {
			return resp, nil
		}
	}

	// 策略三：提取首个大括号包围的子串。
	if candidate := firstBraceSubstring(content); candidate != "" {
		if resp, ok := tryStrictJSON(candidate); ok {
			return resp, nil
		}
	}

	// 策略四：正则提取布尔词与引号字符串，作为尽力而为的记录。
	if resp, ok := tryRegexFallback(content); ok {
		return resp, nil
	}

	return nil, ErrUnparsable
}

// tryStrictJSON 尝试把文本按标准结构解析。
func tryStrictJSON(content string) (*Response, bool) {
	var decision rawDecision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return nil, false
	}
	if decision.Verdict == nil {
		return nil, false
	}
	return &Response{
		Verdict:   decision.Verdict,
		Reasoning: decision.Reasoning,
		Raw:       content,
	}, true
}

// firstBraceSubstring 扫描出首个配平的大括号子串。
func firstBraceSubstring(content string) string {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// tryRegexFallback 在自由文本中寻找布尔词与一段被引用的理由。
func tryRegexFallback(content string) (*Response, bool) {
	verdictMatch := booleanPattern.FindString(content)
	if verdictMatch == "" {
		return nil, false
	}
	reasoning := ""
	if quoted := quotedPattern.FindStringSubmatch(content); len(quoted) == 2 {
		reasoning = quoted[1]
	}
	if reasoning == "" {
		reasoning = content
	}
	return &Response{
		Verdict:   strings.ToLower(verdictMatch),
		Reasoning: reasoning,
		Raw:       content,
	}, true
}
