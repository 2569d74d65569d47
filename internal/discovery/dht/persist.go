package dht

import (
	"encoding/json"
	"time"

	"github.com/dep2p/go-kadnode/pkg/types"
)

// snapshotEntry 快照中的单个节点
type snapshotEntry struct {
	Addrs    []string  `json:"addrs"`
	LastSeen time.Time `json:"last_seen"`
}

// SaveSnapshot 将当前路由表整体写入存储
func (d *DHT) SaveSnapshot() error {
	if d.snapshot == nil {
		return nil
	}
	entries := make(map[string][]byte, d.rt.Size())
	for _, p := range d.rt.Peers() {
		data, err := json.Marshal(snapshotEntry{Addrs: addrStrings(p.Addrs), LastSeen: p.LastSeen})
		if err != nil {
			return err
		}
		entries[p.ID.String()] = data
	}
	if err := d.snapshot.Replace(entries); err != nil {
		return NewDHTError("snapshot", err, "save")
	}
	logger.Debug("路由表快照已保存", "peers", len(entries))
	return nil
}

// LoadSnapshot 从存储加载路由表，返回加载的节点数
//
// 桶满的条目直接丢弃。
func (d *DHT) LoadSnapshot() (int, error) {
	if d.snapshot == nil {
		return 0, nil
	}
	loaded := 0
	err := d.snapshot.Scan(func(key, value []byte) bool {
		id, err := types.ParseNodeID(string(key))
		if err != nil {
			return true
		}
		var e snapshotEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return true
		}
		res := d.rt.Insert(PeerRecord{ID: id, Addrs: parseAddrs(e.Addrs), LastSeen: e.LastSeen})
		if res.Outcome == OutcomeAdded {
			loaded++
		}
		return true
	})
	if err != nil {
		return loaded, NewDHTError("snapshot", err, "load")
	}
	return loaded, nil
}
