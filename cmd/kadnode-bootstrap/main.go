// Package main 提供引导节点
//
// 引导节点以 server 模式运行：监听固定地址，启动后把自身 ID 写入 ID 文件，
// 普通节点读取该文件后连接它加入网络。
//
// 使用方法:
//
//	kadnode-bootstrap -listen /ip4/0.0.0.0/tcp/50000 -id-file /tmp/bootstrap.id
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/go-kadnode"
	"github.com/dep2p/go-kadnode/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	listen := flag.String("listen", config.DefaultBootstrapListenAddr, "监听地址")
	idFile := flag.String("id-file", config.DefaultBootstrapIDFile, "ID 文件输出路径")
	identity := flag.String("identity", "", "身份密钥文件（保持重启后 ID 不变）")
	dataDir := flag.String("data-dir", "", "路由表快照目录")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus /metrics 监听地址")
	logLevel := flag.String("log-level", "info", "日志级别")
	flag.Parse()

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            kadnode bootstrap                         ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.NewBootstrapConfig()
	cfg.Discovery.Bootstrap.IDFile = *idFile

	opts := []kadnode.Option{
		kadnode.WithConfig(cfg),
		kadnode.WithListenAddrs(*listen),
		kadnode.WithLogLevel(*logLevel),
	}
	if *identity != "" {
		opts = append(opts, kadnode.WithIdentityFromFile(*identity))
	}
	if *dataDir != "" {
		opts = append(opts, kadnode.WithDataDir(*dataDir))
	}
	if *metricsAddr != "" {
		opts = append(opts, kadnode.WithMetricsAddr(*metricsAddr))
	}

	node, err := kadnode.New(opts...)
	if err != nil {
		return err
	}
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动引导节点失败: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = node.Stop(stopCtx)
	}()

	fmt.Printf("║ 节点 ID: %s\n", node.ID())
	fmt.Printf("║ ID 文件: %s\n", *idFile)
	fmt.Println("║ 客户端可以使用以下地址连接:")
	for _, addr := range node.FullAddrs() {
		fmt.Printf("║   %s\n", addr)
	}
	fmt.Println("按 Ctrl+C 停止")

	go reportStats(ctx, node)

	<-ctx.Done()
	fmt.Println("\n正在关闭引导节点...")
	return nil
}

// reportStats 定期报告统计信息
func reportStats(ctx context.Context, node *kadnode.Node) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("[%s] 路由表 %d 个节点，连接 %d 个\n",
				time.Now().Format("15:04:05"), node.RoutingTableSize(), len(node.ConnectedPeers()))
		}
	}
}
