// Package host 实现传输会话
//
// Host 聚合 TCP 传输、连接升级器和事件总线，对上层提供：
//
//   - Listen / Addrs：监听与对外公告地址
//   - Connect：按节点 ID 拨号（同一节点的并发拨号合并为一次）
//   - NewStream / SetStreamHandler：基于 multistream-select 的协议流
//   - 连接事件：首个连接建立时发布 EvtConnectionEstablished，
//     最后一个连接关闭时发布 EvtConnectionClosed
package host
