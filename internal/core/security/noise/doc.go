// Package noise 实现 Noise XX 安全握手
//
// 握手流程：
//
//	-> e
//	<- e, ee, s, es, payload
//	-> s, se, payload
//
// Noise 静态密钥为每个 Transport 单独生成的 Curve25519 密钥对，
// 通过 payload 中的 Ed25519 签名与节点身份绑定：
//
//	identity_sig = Sign("noise-libp2p-static-key:" || noise_static_pubkey)
//
// payload 以 protobuf wire 格式编码，字段：
//
//	1: identity_key  Ed25519 公钥（32 字节原始值）
//	2: identity_sig  签名
//	3: listen_addrs  监听地址（multiaddr 二进制，可重复）
package noise
