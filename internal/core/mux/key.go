package mux

import (
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-isomux/pkg/iso"
)

const (
	// DefaultTraceField 默认序列号字段（系统跟踪号）
	DefaultTraceField = iso.FieldTraceNumber

	terminalWidth = 16
	traceWidth    = 6
)

// TraceKeyDeriver 默认关联键推导器
//
// 键 = zeroPad(字段41, 16) + zeroPad(序列号字段, 6)。
// 终端号缺失时贡献空串。序列号缺失时以当前毫秒时间戳代替，
// 这样的键不可能被正常响应匹配，只适合不需要响应的报文。
type TraceKeyDeriver struct {
	traceField int
	clock      clock.Clock
}

// NewKeyDeriver 创建默认关联键推导器，clk 为 nil 时使用系统时钟
func NewKeyDeriver(traceField int, clk clock.Clock) *TraceKeyDeriver {
	if clk == nil {
		clk = clock.New()
	}
	return &TraceKeyDeriver{traceField: traceField, clock: clk}
}

// TraceField 返回序列号字段号
func (d *TraceKeyDeriver) TraceField() int {
	return d.traceField
}

// Key 推导关联键
func (d *TraceKeyDeriver) Key(m *iso.Message) string {
	var sb strings.Builder
	sb.Grow(terminalWidth + traceWidth)

	if m.HasField(iso.FieldTerminalID) {
		sb.WriteString(zeroPad(m.GetString(iso.FieldTerminalID), terminalWidth))
	}
	if m.HasField(d.traceField) {
		sb.WriteString(zeroPad(m.GetString(d.traceField), traceWidth))
	} else {
		sb.WriteString(strconv.FormatInt(d.clock.Now().UnixMilli(), 10))
	}
	return sb.String()
}

// zeroPad 左补零到指定宽度，超长时原样返回
func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
