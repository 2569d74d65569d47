// Package bootstrap 提供引导节点相关的配置来源
//
// 普通节点加入网络时需要一个引导节点的 ID 与地址。两者可以直接来自配置
// （StaticSource），也可以由引导节点启动时写出的 ID 文件提供 ID（FileSource）。
// 发现引擎只依赖解析后的 Config，不关心其来源。
//
// ID 文件为单行 Base58 节点 ID，读取时容忍结尾换行与空白。
package bootstrap
