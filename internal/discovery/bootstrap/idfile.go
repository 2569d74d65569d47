package bootstrap

import (
	"os"
	"strings"

	"github.com/dep2p/go-kadnode/pkg/lib/fsutil"
	"github.com/dep2p/go-kadnode/pkg/types"
)

// WriteIDFile 原子写出节点 ID
func WriteIDFile(path string, id types.NodeID) error {
	if err := fsutil.WriteFileAtomic(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return NewBootstrapError("write_id", path, err, "write failed")
	}
	return nil
}

// ReadIDFile 读取节点 ID
func ReadIDFile(path string) (types.NodeID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.EmptyNodeID, NewBootstrapError("read_id", path, err, "read failed")
	}
	id, err := types.ParseNodeID(strings.TrimSpace(string(data)))
	if err != nil {
		return types.EmptyNodeID, NewBootstrapError("read_id", path, ErrMalformedBootstrapID, err.Error())
	}
	return id, nil
}
