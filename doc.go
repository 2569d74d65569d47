// Package kadnode 提供基于 Kademlia 路由表的节点发现
//
// 每个节点生成 Ed25519 身份，通过已知的引导节点加入覆盖网络，
// 之后用 DHT 查询持续发现并跟踪其他节点。DHT 只用于成员发现，
// 不提供键值存储。
//
// # 快速开始
//
// 引导节点：
//
//	node, err := kadnode.New(kadnode.WithConfig(config.NewBootstrapConfig()))
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Stop(context.Background())
//
// 普通节点读取引导节点写出的 ID 文件并加入网络：
//
//	node, err := kadnode.New(
//	    kadnode.WithBootstrapIDFile("/tmp/kadnode-bootstrap.id", "/ip4/127.0.0.1/tcp/50000"),
//	)
//
// # 组件
//
//   - internal/core/host: TCP + Noise + yamux 传输会话，发布连接事件
//   - internal/protocol/liveness: ping 协议与存活探测
//   - internal/discovery/dht: 路由表、查询与 DHT 协议
//   - internal/discovery/engine: 事件循环，驱动加入、刷新与路由表维护
//
// 各组件通过 go.uber.org/fx 组装，Node 只持有组装后的实例。
package kadnode
