package security

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"CouncilChain/pkg/logger"
)

// RiskLevel 表示一次输入校验得出的整体风险等级。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// rank 用于比较风险等级，数值越大越危险。
func (r RiskLevel) rank() int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// max 返回两个风险等级中较高的一个。
func (r RiskLevel) max(other RiskLevel) RiskLevel {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// Threat 描述一次被识别的威胁。
type Threat struct {
	Category string    `json:"category"`
	Detail   string    `json:"detail"`
	Severity RiskLevel `json:"severity"`
}

// Assessment 汇总输入校验的结论。
type Assessment struct {
	Valid     bool      `json:"valid"`
	Threats   []Threat  `json:"threats,omitempty"`
	Sanitized string    `json:"sanitized"`
	RiskLevel RiskLevel `json:"risk_level"`
}

// injectionPattern 将一条正则与其威胁类别、严重程度绑定。
type injectionPattern struct {
	re       *regexp.Regexp
	category string
	severity RiskLevel
}

// injectionPatterns 是注入检测的固定模式表，初始化后只读。
var injectionPatterns = []injectionPattern{
	{regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|rules?|prompts?)`), "instruction-override", RiskHigh},
	{regexp.MustCompile(`(?i)(forget|disregard|override|discard)\s+(all\s+|any\s+)?(previous|prior|above|earlier|your)\s+(instructions?|rules?|prompts?|guidelines?)`), "instruction-override", RiskHigh},
	{regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`), "instruction-override", RiskHigh},
	{regexp.MustCompile(`(?i)^\s*(system|assistant|developer)\s*:`), "role-switch", RiskHigh},
	{regexp.MustCompile(`(?i)\byou\s+are\s+now\b`), "role-switch", RiskHigh},
	{regexp.MustCompile(`<\|im_start\|>|<\|im_end\|>|<\|endoftext\|>`), "template-delimiter", RiskHigh},
	{regexp.MustCompile(`\[INST\]|\[/INST\]|<<SYS>>|<</SYS>>`), "template-delimiter", RiskHigh},
	{regexp.MustCompile(`(?i)\b(act|behave|respond)\s+as\s+(a\s+|an\s+)?(system|admin|root|developer)`), "role-switch", RiskMedium},
	{regexp.MustCompile(`(?i)\bpretend\s+to\s+be\b`), "role-switch", RiskMedium},
	{regexp.MustCompile(`(?i)\b(jailbreak|do\s+anything\s+now)\b`), "jailbreak", RiskMedium},
	{regexp.MustCompile(`(?i)\boutput\s+(vote|verdict)\s*:`), "verdict-forcing", RiskHigh},
}

// highRiskPatterns 是供信息流控制器复用的高危子集。
var highRiskPatterns = func() []injectionPattern {
	out := make([]injectionPattern, 0, len(injectionPatterns))
	for _, p := range injectionPatterns {
		if p.severity == RiskHigh {
			out = append(out, p)
		}
	}
	return out
}()

// base64RunPattern 识别疑似编码载荷的长 base64 串。
var base64RunPattern = regexp.MustCompile(`[A-Za-z0-9+/=]{40,}`)

// defaultAllowedHosts 是提交 URL 的主机允许名单，采用后缀匹配。
var defaultAllowedHosts = []string{
	"github.com", "gitlab.com", "bitbucket.org", "codeberg.org",
	"twitter.com", "x.com", "reddit.com", "linkedin.com",
	"youtube.com", "youtu.be", "vimeo.com", "twitch.tv",
	"imgur.com", "flickr.com", "pastebin.com", "medium.com",
	"notion.site", "docs.google.com",
}

// maxNotesLength 是备注在消毒后允许的最大长度。
const maxNotesLength = 2000

// Gateway 聚合输入校验、输出校验与提示词构造能力。
// 模式表在构造后只读，可被并发会话共享。
type Gateway struct {
	allowedHosts []string
	audit        *slog.Logger
}

// GatewayOption 定义可选配置。
type GatewayOption func(*Gateway)

// WithAllowedHosts 覆盖默认的 URL 主机允许名单。
func WithAllowedHosts(hosts []string) GatewayOption {
	return func(g *Gateway) {
		if len(hosts) > 0 {
			g.allowedHosts = hosts
		}
	}
}

// WithAuditLogger 指定审计日志输出。
func WithAuditLogger(audit *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if audit != nil {
			g.audit = audit
		}
	}
}

// NewGateway 构造安全网关。
func NewGateway(opts ...GatewayOption) *Gateway {
	g := &Gateway{
		allowedHosts: defaultAllowedHosts,
		audit:        logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// ValidateInput 对提交 URL 与备注进行威胁扫描和消毒。
// 仅当整体风险为 high 时 Valid 为 false，其余情况均放行并记录威胁。
func (g *Gateway) ValidateInput(submissionID, rawURL, notes string) Assessment {
	assessment := Assessment{RiskLevel: RiskLow}

	for _, pattern := range injectionPatterns {
		if match := pattern.re.FindString(notes); match != "" {
			assessment.Threats = append(assessment.Threats, Threat{
				Category: pattern.category,
				Detail:   truncateForAudit(match),
				Severity: pattern.severity,
			})
			assessment.RiskLevel = assessment.RiskLevel.max(pattern.severity)
		}
	}

	if threat, ok := g.checkURL(rawURL); ok {
		assessment.Threats = append(assessment.Threats, threat)
		assessment.RiskLevel = assessment.RiskLevel.max(threat.Severity)
	}

	for _, threat := range heuristicThreats(notes) {
		assessment.Threats = append(assessment.Threats, threat)
		assessment.RiskLevel = assessment.RiskLevel.max(threat.Severity)
	}

	assessment.Sanitized = SanitizeNotes(notes)
	assessment.Valid = assessment.RiskLevel != RiskHigh

	if len(assessment.Threats) > 0 {
		g.auditEvent("input_threats_detected", submissionID, assessment)
	}
	return assessment
}

// checkURL 校验 URL 可解析且主机在允许名单内。
// 无法解析的 URL 视为高风险，名单外的主机至少为中风险。
func (g *Gateway) checkURL(rawURL string) (Threat, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Threat{Category: "url-missing", Detail: "submission url is empty", Severity: RiskMedium}, true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Threat{Category: "url-malformed", Detail: truncateForAudit(rawURL), Severity: RiskHigh}, true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return Threat{}, false
		}
	}
	return Threat{Category: "url-host-not-allowed", Detail: host, Severity: RiskMedium}, true
}

// heuristicThreats 运行与具体模式无关的启发式检查。
func heuristicThreats(notes string) []Threat {
	var threats []Threat
	if len(notes) > maxNotesLength {
		threats = append(threats, Threat{
			Category: "excessive-length",
			Detail:   "notes exceed sanitization budget",
			Severity: RiskMedium,
		})
	}
	if ratio := nonAlphanumericRatio(notes); ratio > 0.3 {
		threats = append(threats, Threat{
			Category: "non-alphanumeric-density",
			Detail:   "unusual symbol density in notes",
			Severity: RiskMedium,
		})
	}
	if base64RunPattern.MatchString(notes) {
		threats = append(threats, Threat{
			Category: "encoded-payload",
			Detail:   "base64-like run detected",
			Severity: RiskMedium,
		})
	}
	return threats
}

// nonAlphanumericRatio 计算既非字母数字也非空白的字符占比。
func nonAlphanumericRatio(text string) float64 {
	runes := []rune(text)
	if len(runes) == 0 {
		return 0
	}
	other := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			other++
		}
	}
	return float64(other) / float64(len(runes))
}

// SanitizeNotes 去除尖括号与空字节，按 rune 截断到预算长度并去除首尾空白。
func SanitizeNotes(notes string) string {
	replacer := strings.NewReplacer("<", "", ">", "", "\x00", "")
	cleaned := replacer.Replace(notes)
	if runes := []rune(cleaned); len(runes) > maxNotesLength {
		cleaned = string(runes[:maxNotesLength])
	}
	return strings.TrimSpace(cleaned)
}

// matchesHighRiskPattern 判断内容是否命中高危注入模式，供流控制器复用。
func matchesHighRiskPattern(content string) bool {
	for _, pattern := range highRiskPatterns {
		if pattern.re.MatchString(content) {
			return true
		}
	}
	return false
}

// auditEvent 将安全事件写入审计日志，失败不影响主流程。
func (g *Gateway) auditEvent(eventType, submissionID string, assessment Assessment) {
	categories := make([]string, 0, len(assessment.Threats))
	for _, threat := range assessment.Threats {
		categories = append(categories, threat.Category)
	}
	g.audit.Warn("安全事件",
		slog.String("event_type", eventType),
		slog.String("submission_id", submissionID),
		slog.String("risk_level", string(assessment.RiskLevel)),
		slog.Any("threats", categories),
		slog.Time("occurred_at", time.Now()),
	)
}

// truncateForAudit 控制写入审计日志的原文长度。
func truncateForAudit(text string) string {
	const limit = 120
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
