// Package security 是评审会话的安全网关。它在推理发生之前对不可信输入做
// 注入检测与消毒，在推理发生之后对模型输出做强制校验，并通过会话级的
// 信息流控制器在敏感动作执行点做第二道独立把关。
package security
