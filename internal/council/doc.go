// Package council 实现评审会话的编排核心。它驱动一次完整的评估流程：
// 安全预校验、内容分类、专长子集的深度分析、全员投票与多数共识，
// 并保证任何单个后端的失败只会表现为"少算一票"而非整体失败。
package council
