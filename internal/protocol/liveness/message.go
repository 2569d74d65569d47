// Package liveness 实现存活探测协议
//
// 协议 /kadnode/ping/1.0.0：发起方写入 PingRequest，对端原样回写同 ID 的 PongResponse。
// 消息为 JSON，使用 varint 长度前缀。
package liveness

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PingRequest Ping 请求
type PingRequest struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// PongResponse Pong 响应
type PongResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

func newPingRequest(now time.Time) *PingRequest {
	return &PingRequest{ID: uuid.NewString(), Timestamp: now.UnixNano()}
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func decode[T any](data []byte) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
