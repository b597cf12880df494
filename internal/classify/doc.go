// Package classify 根据提交物的 URL 推断粗粒度内容类别。分类结果仅用于
// 评审员路由：真正的内容解读交给具备相应原生能力的模型后端完成，本包
// 永远不会发起网络请求。
package classify
