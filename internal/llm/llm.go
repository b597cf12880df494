package llm

import "context"

// Request 描述一次发送给模型后端的评审调用。
type Request struct {
	SystemPrompt string
	UserPrompt   string
}

// Response 是后端返回的结构化结论。Verdict 保留原始编码
// （布尔、字符串或数值），由安全网关统一强制转换为 bool。
type Response struct {
	Verdict   any
	Reasoning string
	Raw       string
}

// Client 定义了调用模型后端的统一接口。每次 Invoke 恰好发起一次
// 外部调用，不做内部重试；重试与降级策略由编排层决定。
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}
