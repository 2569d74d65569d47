// Package types 定义 kadnode 的基础类型
//
// 这是整个系统的最底层包，不依赖任何内部包。
// 包含节点标识 NodeID、地址信息 AddrInfo、运行模式 Mode，
// 以及在事件总线上流转的事件联合类型 Event。
package types
