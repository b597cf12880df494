package security

import (
	"log/slog"
	"sync"
	"time"

	"CouncilChain/pkg/logger"
)

// TrustLevel 表示一个被追踪值当前的信任等级。
type TrustLevel string

const (
	TrustUntrusted TrustLevel = "untrusted"
	TrustValidated TrustLevel = "validated"
	TrustSystem    TrustLevel = "system"
)

// 受流控制器保护的敏感动作。
const (
	ActionCastVote       = "vote"
	ActionPersistVerdict = "persist"
)

// TaintedValue 记录一个来自信任边界之外的值及其当前信任等级。
type TaintedValue struct {
	ID        string
	Content   string
	Source    string
	Level     TrustLevel
	TrackedAt time.Time
}

// FlowController 是会话级的信息流控制器。每次评估会话构造一个全新实例，
// 会话结束即丢弃，绝不跨会话共享。
type FlowController struct {
	mu     sync.Mutex
	values map[string]*TaintedValue
	audit  *slog.Logger
}

// NewFlowController 构造信息流控制器。
func NewFlowController() *FlowController {
	return &FlowController{
		values: make(map[string]*TaintedValue),
		audit:  logger.Audit(),
	}
}

// MarkUntrusted 登记一个不可信值。
func (f *FlowController) MarkUntrusted(id, content, source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = &TaintedValue{
		ID:        id,
		Content:   content,
		Source:    source,
		Level:     TrustUntrusted,
		TrackedAt: time.Now(),
	}
}

// MarkValidated 将已通过校验的值升级为 validated。
func (f *FlowController) MarkValidated(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value, ok := f.values[id]; ok {
		value.Level = TrustValidated
	}
}

// MarkSystem 登记一个系统内部生成的值。
func (f *FlowController) MarkSystem(id, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = &TaintedValue{
		ID:        id,
		Content:   content,
		Source:    "system",
		Level:     TrustSystem,
		TrackedAt: time.Now(),
	}
}

// Lookup 返回指定值的快照。
func (f *FlowController) Lookup(id string) (TaintedValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[id]
	if !ok {
		return TaintedValue{}, false
	}
	return *value, true
}

// CanExecuteAction 在敏感动作的执行点做独立于上游校验的第二道把关：
// 只要任一引用的输入仍为 untrusted 且命中高危注入模式，动作即被拒绝。
func (f *FlowController) CanExecuteAction(action string, inputIDs []string) bool {
	if action != ActionCastVote && action != ActionPersistVerdict {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range inputIDs {
		value, ok := f.values[id]
		if !ok {
			continue
		}
		if value.Level == TrustUntrusted && matchesHighRiskPattern(value.Content) {
			f.audit.Warn("安全事件",
				slog.String("event_type", "flow_control_denied"),
				slog.String("action", action),
				slog.String("input_id", id),
				slog.String("source", value.Source),
			)
			return false
		}
	}
	return true
}
