package spacemux

import (
	"errors"
	"strings"

	"github.com/dep2p/go-isomux/pkg/iso"
)

// ErrMissingKey 报文不含任何关联字段
var ErrMissingKey = errors.New("spacemux: key fields not found")

// mapMTI 按位映射 MTI 前三位，不足四位先左补零
func mapMTI(mti string, mapping [3]string) string {
	if len(mti) < 4 {
		mti = strings.Repeat("0", 4-len(mti)) + mti
	}
	if len(mti) != 4 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < len(mapping); i++ {
		c := int(mti[i] - '0')
		if c >= 0 && c < 10 {
			sb.WriteByte(mapping[i][c])
		}
	}
	return sb.String()
}

// buildKey 计算报文的关联键
//
// 终端号补齐到 16 位，流水号补齐到 6 位（MTI 版本为 2 时 12 位），
// 其他字段原样拼接，缺失字段跳过。
func buildKey(out string, m *iso.Message, fields []int, mapping [3]string) (string, error) {
	var sb strings.Builder
	sb.WriteString(out)
	sb.WriteByte('.')
	sb.WriteString(mapMTI(m.MTI(), mapping))

	found := false
	for _, f := range fields {
		if !m.HasField(f) {
			continue
		}
		v := m.GetString(f)
		switch f {
		case iso.FieldTerminalID:
			v = zeroPad(strings.TrimSpace(v), 16)
		case iso.FieldTraceNumber:
			width := 6
			if strings.HasPrefix(m.MTI(), "2") {
				width = 12
			}
			v = zeroPad(strings.TrimSpace(v), width)
		}
		sb.WriteString(v)
		found = true
	}
	if !found {
		return "", ErrMissingKey
	}
	return sb.String(), nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
