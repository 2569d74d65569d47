// Package engine 实现节点发现引擎
//
// 引擎在单个事件循环中处理三类输入：事件总线上的连接与存活事件、
// 后台查询与探测的完成通知、周期刷新定时器。网络 I/O 都在循环派生的
// goroutine 中执行，结果通过 inbox 回到循环，循环本身从不阻塞在 I/O 上。
//
// 状态机：
//
//	Joining --(与引导节点建立连接)--> Active
//
// 进入 Active 时插入引导节点，发起 Bootstrap 查询与 ClosestPeers(self)。
// 之后每个新连接触发一次 ClosestPeers(对端 ID)，同一目标在刷新间隔内只查询一次。
// 连接关闭不会立即删除节点，而是先做一次重连探测，探测失败才删除。
package engine
