package badger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dep2p/go-isomux/pkg/iso"
)

const (
	keyPrefix = "s/"
	keySep    = 0x00

	// 序号以中点为界：Out 向上增长，Push 向下增长
	seqMidpoint = uint64(1) << 63
)

// ErrInvalidKey 键包含分隔符
var ErrInvalidKey = errors.New("space/badger: key must not contain NUL")

// prefixFor 返回键的迭代前缀
func prefixFor(key string) []byte {
	p := make([]byte, 0, len(keyPrefix)+len(key)+1)
	p = append(p, keyPrefix...)
	p = append(p, key...)
	return append(p, keySep)
}

func encodeKey(key string, seq uint64) []byte {
	p := prefixFor(key)
	return binary.BigEndian.AppendUint64(p, seq)
}

// decodeKey 拆出空间键和序号
func decodeKey(k []byte) (string, uint64, bool) {
	if !bytes.HasPrefix(k, []byte(keyPrefix)) || len(k) < len(keyPrefix)+1+8 {
		return "", 0, false
	}
	body := k[len(keyPrefix):]
	sep := len(body) - 9
	if body[sep] != keySep {
		return "", 0, false
	}
	return string(body[:sep]), binary.BigEndian.Uint64(body[sep+1:]), true
}

func encodeValue(expires time.Time, m *iso.Message) ([]byte, error) {
	data, err := iso.Marshal(m)
	if err != nil {
		return nil, err
	}
	var exp uint64
	if !expires.IsZero() {
		exp = uint64(expires.UnixMilli())
	}
	v := make([]byte, 8, 8+len(data))
	binary.BigEndian.PutUint64(v, exp)
	return append(v, data...), nil
}

// decodeHeader 只解析过期时间
func decodeHeader(v []byte) (time.Time, error) {
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("space/badger: short value (%d bytes)", len(v))
	}
	exp := binary.BigEndian.Uint64(v[:8])
	if exp == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(exp)), nil
}

func decodeValue(v []byte) (time.Time, *iso.Message, error) {
	exp, err := decodeHeader(v)
	if err != nil {
		return time.Time{}, nil, err
	}
	m, err := iso.Unmarshal(v[8:])
	if err != nil {
		return time.Time{}, nil, err
	}
	return exp, m, nil
}

func expired(exp, now time.Time) bool {
	return !exp.IsZero() && !now.Before(exp)
}
