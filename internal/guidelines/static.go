package guidelines

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义评审准则检索的通用接口。
type Provider interface {
	Query(contentType, notes string) []Snippet
}

// Snippet 描述可供评审员引用的一条内容准则。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 通过加载 JSON 文件提供静态准则检索能力。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态准则库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载准则条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("准则库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析准则库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取准则库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析准则库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据内容类别和提交说明进行简单匹配。
func (p *StaticProvider) Query(contentType, notes string) []Snippet {
	if p == nil {
		return nil
	}

	contentType = strings.ToLower(strings.TrimSpace(contentType))
	notes = strings.ToLower(strings.TrimSpace(notes))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, contentType, notes) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

// matches 判断准则条目是否命中。类别标签优先，其次是说明中的关键字。
func matches(item Snippet, contentType, notes string) bool {
	for _, tag := range item.Tags {
		if strings.ToLower(strings.TrimSpace(tag)) == contentType {
			return true
		}
	}
	if notes == "" {
		return false
	}
	for _, keyword := range item.Keywords {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword != "" && strings.Contains(notes, keyword) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
