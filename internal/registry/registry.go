package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"CouncilChain/internal/classify"
)

// Capability 表示评审员具备的一项原生能力。
type Capability string

const (
	CapabilityCodeReview    Capability = "code-review"
	CapabilityMediaAnalysis Capability = "media-analysis"
	CapabilityRealTimeData  Capability = "real-time-data"
	CapabilityVision        Capability = "vision"
)

// Evaluator 描述一位评审员：其人格设定、所依赖的模型后端以及擅长的内容类别。
type Evaluator struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Backend      string                 `json:"backend"`
	Affinities   []classify.ContentType `json:"affinities"`
	Capabilities []Capability           `json:"capabilities"`
	Personality  string                 `json:"personality"`
}

// HasAffinity 判断评审员是否擅长指定的内容类别。
func (e Evaluator) HasAffinity(kind classify.ContentType) bool {
	for _, affinity := range e.Affinities {
		if affinity == kind {
			return true
		}
	}
	return false
}

// HasCapability 判断评审员是否具备指定能力。
func (e Evaluator) HasCapability(cap Capability) bool {
	for _, item := range e.Capabilities {
		if item == cap {
			return true
		}
	}
	return false
}

// Registry 保存不可变的评审员目录。
type Registry struct {
	evaluators []Evaluator
	index      map[string]int
	fallback   []string
}

// defaultEvaluators 是内置的参考评审团。
func defaultEvaluators() []Evaluator {
	return []Evaluator{
		{
			ID:           "archivist",
			Name:         "The Archivist",
			Backend:      "openai",
			Affinities:   []classify.ContentType{classify.TypeCodeRepository, classify.TypePlainText},
			Capabilities: []Capability{CapabilityCodeReview},
			Personality: "你是一位严谨的代码档案员，按照仓库结构、提交质量与测试覆盖来评估工作成果。" +
				"你重视可验证的事实，拒绝空洞的描述。",
		},
		{
			ID:           "broadcaster",
			Name:         "The Broadcaster",
			Backend:      "anthropic",
			Affinities:   []classify.ContentType{classify.TypeSocialPost, classify.TypePlainText},
			Capabilities: []Capability{CapabilityRealTimeData},
			Personality: "你是一位传播分析师，评估社交内容的真实性、覆盖面与表达质量。" +
				"你关注内容是否真实发布以及是否达成了声明的目标。",
		},
		{
			ID:           "projectionist",
			Name:         "The Projectionist",
			Backend:      "anthropic",
			Affinities:   []classify.ContentType{classify.TypeVideo, classify.TypeImage},
			Capabilities: []Capability{CapabilityMediaAnalysis, CapabilityVision},
			Personality: "你是一位媒体鉴定师，负责判断视频与图像产出是否与提交说明相符。" +
				"你用画面证据说话，不接受无法核对的描述。",
		},
		{
			ID:           "arbiter",
			Name:         "The Arbiter",
			Backend:      "localbridge",
			Affinities:   []classify.ContentType{classify.TypeUnknown},
			Capabilities: nil,
			Personality: "你是一位中立的仲裁者，在缺乏专门证据时基于提交说明的完整性与一致性做出保守判断。" +
				"当信息不足时倾向于拒绝。",
		},
	}
}

// defaultFallback 是内容类别未命中任何评审员时使用的兜底子集，
// 保证深度分析阶段永远有人出场。
var defaultFallback = []string{"archivist", "arbiter"}

// New 基于给定评审员构建目录。列表为空时使用内置评审团。
func New(evaluators []Evaluator) (*Registry, error) {
	if len(evaluators) == 0 {
		evaluators = defaultEvaluators()
	}
	index := make(map[string]int, len(evaluators))
	for i, evaluator := range evaluators {
		id := strings.TrimSpace(evaluator.ID)
		if id == "" {
			return nil, fmt.Errorf("评审员 %d 缺少 ID", i)
		}
		if strings.TrimSpace(evaluator.Backend) == "" {
			return nil, fmt.Errorf("评审员 %s 未指定模型后端", id)
		}
		if _, ok := index[id]; ok {
			return nil, fmt.Errorf("评审员 ID 重复: %s", id)
		}
		index[id] = i
	}

	fallback := make([]string, 0, len(defaultFallback))
	for _, id := range defaultFallback {
		if _, ok := index[id]; ok {
			fallback = append(fallback, id)
		}
	}
	// 自定义目录可能不包含内置 ID，此时以首位评审员兜底。
	if len(fallback) == 0 {
		fallback = append(fallback, evaluators[0].ID)
	}

	return &Registry{evaluators: evaluators, index: index, fallback: fallback}, nil
}

// Load 从 JSON 文件加载评审员目录。
func Load(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return New(nil)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取评审员目录失败: %w", err)
	}
	var evaluators []Evaluator
	if err := json.Unmarshal(content, &evaluators); err != nil {
		return nil, fmt.Errorf("解析评审员目录失败: %w", err)
	}
	return New(evaluators)
}

// All 返回全部评审员。
func (r *Registry) All() []Evaluator {
	out := make([]Evaluator, len(r.evaluators))
	copy(out, r.evaluators)
	return out
}

// Get 按 ID 查找评审员。
func (r *Registry) Get(id string) (Evaluator, bool) {
	idx, ok := r.index[id]
	if !ok {
		return Evaluator{}, false
	}
	return r.evaluators[idx], true
}

// SelectForContent 返回擅长指定内容类别的评审员子集。
// 没有任何评审员命中时回退到固定兜底子集，评审团永远不为空。
func (r *Registry) SelectForContent(kind classify.ContentType) []Evaluator {
	selected := make([]Evaluator, 0, len(r.evaluators))
	for _, evaluator := range r.evaluators {
		if evaluator.HasAffinity(kind) {
			selected = append(selected, evaluator)
		}
	}
	if len(selected) > 0 {
		return selected
	}
	for _, id := range r.fallback {
		if evaluator, ok := r.Get(id); ok {
			selected = append(selected, evaluator)
		}
	}
	return selected
}

// Size 返回评审员数量。
func (r *Registry) Size() int {
	return len(r.evaluators)
}
