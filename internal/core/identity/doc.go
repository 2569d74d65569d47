// Package identity 提供节点身份
//
// 身份由一对 Ed25519 密钥组成，NodeID = SHA256(公钥)。
// 私钥不离开本包：外部只能通过 Sign 使用它，传输层握手是唯一调用方。
package identity
