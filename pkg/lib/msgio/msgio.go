// Package msgio 提供无符号 varint 长度前缀的消息读写
//
// 帧格式：uvarint(len) || payload
package msgio

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// DefaultMaxSize 默认最大消息长度 1 MiB
const DefaultMaxSize = 1 << 20

// ErrMsgTooLarge 消息超过上限
var ErrMsgTooLarge = errors.New("msgio: message too large")

// WriteMsg 写入一条消息
func WriteMsg(w io.Writer, data []byte) error {
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(data)))+len(data))
	buf = append(buf, varint.ToUvarint(uint64(len(data)))...)
	buf = append(buf, data...)
	_, err := w.Write(buf)
	return err
}

// ReadMsg 读取一条消息，max <= 0 时使用 DefaultMaxSize
func ReadMsg(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultMaxSize
	}
	n, err := varint.ReadUvarint(byteReader{r})
	if err != nil {
		return nil, err
	}
	if n > uint64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrMsgTooLarge, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// byteReader 逐字节读取，避免缓冲读取越过消息边界
type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var one [1]byte
	if _, err := io.ReadFull(b.r, one[:]); err != nil {
		return 0, err
	}
	return one[0], nil
}
