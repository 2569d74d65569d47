// Package dht 实现 Kademlia 风格的路由表与节点发现协议
//
// 路由表按与本地 ID 的共同前缀长度分为 256 个 K 桶，每桶最多 K 个节点，
// 桶内按最近活跃排序，桶满时新节点进入替换缓存并返回驱逐候选，
// 由调用方决定是否先做新鲜度探测。
//
// 网络协议 /kadnode/kad/1.0.0 每个流一次请求响应，JSON 编码，varint 长度前缀。
// 支持的消息：
//   - FIND_NODE：返回距目标最近的 K 个节点（不含请求方）
//   - ADD_PROVIDER / GET_PROVIDERS：provider 记录的发布与查询
//   - PING：连通性检查
//
// 迭代查询每轮并发 Alpha 个请求，直到最近的 K 个候选都已查询。
// 查询结果只返回给调用方，路由表的写入由发现引擎统一完成。
package dht
