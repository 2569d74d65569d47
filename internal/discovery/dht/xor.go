package dht

import (
	"bytes"
	"math/bits"
	"math/rand"
	"sort"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// KeySize 密钥空间位数
const KeySize = types.NodeIDLen * 8

// Distance XOR 距离，按大端无符号整数比较
type Distance [types.NodeIDLen]byte

// XORDistance 计算两个 NodeID 的 XOR 距离
func XORDistance(a, b types.NodeID) Distance {
	var d Distance
	for i := range d {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Cmp 比较两个距离
func (d Distance) Cmp(other Distance) int {
	return bytes.Compare(d[:], other[:])
}

// IsZero 距离是否为 0
func (d Distance) IsZero() bool {
	return d == Distance{}
}

// CompareDistance 比较 a 和 b 到 target 的距离
func CompareDistance(a, b, target types.NodeID) int {
	return XORDistance(a, target).Cmp(XORDistance(b, target))
}

// CommonPrefixLen 计算共同前缀位数
func CommonPrefixLen(a, b types.NodeID) int {
	for i := 0; i < types.NodeIDLen; i++ {
		if x := a[i] ^ b[i]; x != 0 {
			return i*8 + bits.LeadingZeros8(x)
		}
	}
	return KeySize
}

// BucketIndex 返回 other 在 local 路由表中的桶下标
//
// 两个 ID 相同时共同前缀为 256，归入最后一个桶。
func BucketIndex(local, other types.NodeID) int {
	cpl := CommonPrefixLen(local, other)
	if cpl >= KeySize {
		return KeySize - 1
	}
	return cpl
}

// closer 按到 target 的距离排序，距离相同按 ID 字典序
func closer(a, b, target types.NodeID) bool {
	if c := CompareDistance(a, b, target); c != 0 {
		return c < 0
	}
	return a.Compare(b) < 0
}

// SortByDistance 原地按到 target 的距离升序排序
func SortByDistance(recs []PeerRecord, target types.NodeID) {
	sort.Slice(recs, func(i, j int) bool {
		return closer(recs[i].ID, recs[j].ID, target)
	})
}

// RandomIDInBucket 生成一个恰好与 local 共享 cpl 位前缀的随机 ID
func RandomIDInBucket(local types.NodeID, cpl int) types.NodeID {
	id := types.RandomNodeID()
	if cpl >= KeySize {
		return local
	}

	byteIdx, bitIdx := cpl/8, uint(cpl%8)
	copy(id[:byteIdx], local[:byteIdx])

	// 前 bitIdx 位与 local 相同，第 bitIdx 位取反，其余随机
	keep := byte(0xFF) << (8 - bitIdx)
	flip := byte(0x80) >> bitIdx
	rest := ^(keep | flip)
	id[byteIdx] = (local[byteIdx] & keep) | (^local[byteIdx] & flip) | (byte(rand.Intn(256)) & rest)
	return id
}
