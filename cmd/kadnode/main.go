// Package main 提供普通节点命令行入口
//
// 读取引导节点写出的 ID 文件加入网络，之后持续打印路由表变化。
//
//	kadnode -id-file /tmp/bootstrap.id -bootstrap-addr /ip4/127.0.0.1/tcp/50000
//	kadnode -bootstrap /ip4/10.0.0.1/tcp/50000/p2p/<NodeID>
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
	"github.com/dep2p/go-kadnode/pkg/lib/log"
	"github.com/dep2p/go-kadnode/pkg/types"
)

var logger = log.Logger("kadnode/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行的覆盖
//   JSON 配置文件：这个节点的固定配置
//
// 优先级：命令行 > 环境变量（KADNODE_*）> 配置文件 > 默认值
var (
	configFile    = flag.String("config", "", "配置文件路径")
	listenAddr    = flag.String("listen", config.DefaultListenAddr, "监听地址")
	identityFile  = flag.String("identity", "", "身份密钥文件路径（为空则每次生成新身份）")
	bootstrapFull = flag.String("bootstrap", "", "引导节点完整地址 /ip4/.../tcp/.../p2p/<id>")
	bootstrapAddr = flag.String("bootstrap-addr", "/ip4/127.0.0.1/tcp/50000", "引导节点地址（与 -id-file 配合）")
	idFile        = flag.String("id-file", config.DefaultBootstrapIDFile, "引导节点 ID 文件")
	dataDir       = flag.String("data-dir", "", "路由表快照目录（为空则不持久化）")
	metricsAddr   = flag.String("metrics-addr", "", "Prometheus /metrics 监听地址")
	logLevel      = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	statsInterval = flag.Duration("stats", 30*time.Second, "路由表统计输出间隔，0 关闭")
	showVersion   = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(kadnode.VersionInfo())
		return nil
	}

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	node, err := kadnode.New(opts...)
	if err != nil {
		return err
	}
	sub, err := node.Subscribe(types.EvtRoutingUpdated{}, types.EvtQueryProgressed{})
	if err != nil {
		return err
	}
	defer sub.Close()

	fmt.Printf("📦 %s\n", kadnode.VersionInfo())
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := node.Stop(stopCtx); err != nil {
			logger.Warn("关闭节点失败", "error", err)
		}
	}()

	printNodeInfo(node)
	go watchEvents(ctx, sub)
	if *statsInterval > 0 {
		go reportStats(ctx, node, *statsInterval)
	}

	<-ctx.Done()
	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildOptions 按优先级组装选项
func buildOptions() ([]kadnode.Option, error) {
	var opts []kadnode.Option

	if *configFile != "" {
		opts = append(opts, kadnode.WithConfigFile(*configFile))
	}
	opts = append(opts, envOptions()...)

	if isFlagSet("listen") || *configFile == "" {
		opts = append(opts, kadnode.WithListenAddrs(*listenAddr))
	}
	if *identityFile != "" {
		opts = append(opts, kadnode.WithIdentityFromFile(*identityFile))
	}
	switch {
	case *bootstrapFull != "":
		opts = append(opts, kadnode.WithBootstrap(*bootstrapFull))
	case isFlagSet("id-file") || isFlagSet("bootstrap-addr") || *configFile == "":
		opts = append(opts, kadnode.WithBootstrapIDFile(*idFile, *bootstrapAddr))
	}
	if *dataDir != "" {
		opts = append(opts, kadnode.WithDataDir(*dataDir))
	}
	if *metricsAddr != "" {
		opts = append(opts, kadnode.WithMetricsAddr(*metricsAddr))
	}
	if *logLevel != "" {
		opts = append(opts, kadnode.WithLogLevel(*logLevel))
	}
	return opts, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printNodeInfo(node *kadnode.Node) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Printf("║ 节点 ID: %s\n", node.ID())
	fmt.Printf("║ 模式:    %s\n", node.Mode())
	fmt.Println("║ 监听地址:")
	for _, addr := range node.FullAddrs() {
		fmt.Printf("║   • %s\n", addr)
	}
	fmt.Printf("║ 路由表:  %d 个节点\n", node.RoutingTableSize())
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println("节点已启动，按 Ctrl+C 退出")
}

// watchEvents 打印路由表变化与失败的查询
func watchEvents(ctx context.Context, sub kadnode.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Out():
			if !ok {
				return
			}
			switch e := evt.(type) {
			case types.EvtRoutingUpdated:
				if e.Outcome == types.RoutingUpdated {
					continue
				}
				fmt.Printf("[routing] %-7s %s bucket=%d\n", e.Outcome, e.PeerID.ShortString(), e.Bucket)
			case types.EvtQueryProgressed:
				if e.Err != nil {
					fmt.Printf("[query] %s %s failed: %v\n", e.Kind, e.Target.ShortString(), e.Err)
				}
			}
		}
	}
}

func reportStats(ctx context.Context, node *kadnode.Node, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("路由表统计",
				"peers", node.RoutingTableSize(),
				"connected", len(node.ConnectedPeers()),
				"state", node.State().String())
		}
	}
}
