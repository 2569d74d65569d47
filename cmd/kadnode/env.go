package main

import (
	"os"
	"strings"

	"github.com/dep2p/go-kadnode"
)

// 环境变量
const (
	envPrefix     = "KADNODE_"
	envBootstrap  = "BOOTSTRAP"
	envIDFile     = "ID_FILE"
	envBootAddr   = "BOOTSTRAP_ADDR"
	envListenAddr = "LISTEN_ADDR"
	envLogLevel   = "LOG_LEVEL"
)

// envOptions 从环境变量构造选项
//
// 支持的环境变量：
//   - KADNODE_BOOTSTRAP: 引导节点完整地址
//   - KADNODE_ID_FILE + KADNODE_BOOTSTRAP_ADDR: ID 文件与引导地址
//   - KADNODE_LISTEN_ADDR: 监听地址
//   - KADNODE_LOG_LEVEL: 日志级别
func envOptions() []kadnode.Option {
	var opts []kadnode.Option
	if v := getenv(envBootstrap); v != "" {
		opts = append(opts, kadnode.WithBootstrap(v))
	} else if v := getenv(envIDFile); v != "" {
		opts = append(opts, kadnode.WithBootstrapIDFile(v, getenv(envBootAddr)))
	}
	if v := getenv(envListenAddr); v != "" {
		opts = append(opts, kadnode.WithListenAddrs(v))
	}
	if v := getenv(envLogLevel); v != "" {
		opts = append(opts, kadnode.WithLogLevel(v))
	}
	return opts
}

func getenv(name string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + name))
}
