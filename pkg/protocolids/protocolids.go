// Package protocolids 定义 kadnode 所有协议 ID 的注册表。
//
// 所有模块、测试、CLI 需要协议 ID 时引用本包常量，不在别处写字面量。
//
// 命名规范：
//
//   - 连接升级协议: /noise, /yamux/1.0.0（与 libp2p 同名，便于抓包识别）
//   - 系统协议: /kadnode/{name}/{version}
package protocolids

// ProtocolID 协议标识
type ProtocolID = string

// ----------------------------------------------------------------------------
// 连接升级
// ----------------------------------------------------------------------------

// Noise 安全握手协议
const Noise ProtocolID = "/noise"

// Yamux 流多路复用协议
const Yamux ProtocolID = "/yamux/1.0.0"

// ----------------------------------------------------------------------------
// 系统协议
// ----------------------------------------------------------------------------

// Kad DHT 节点发现协议
const Kad ProtocolID = "/kadnode/kad/1.0.0"

// Ping 存活探测协议
const Ping ProtocolID = "/kadnode/ping/1.0.0"

// All 返回所有系统协议 ID
func All() []ProtocolID {
	return []ProtocolID{Kad, Ping}
}
