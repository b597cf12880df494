// Package registry 维护评审团成员目录。目录在启动阶段一次性加载后不可变，
// 可安全地被多个评估会话并发读取。
package registry
