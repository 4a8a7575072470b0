// Package iso 定义 ISO-8583 消息模型
//
// Message 是已解码的消息对象：字段号 → 字符串值，字段 0 为 MTI。
// 具体的报文打包格式（packager）不在本包范围内，
// codec.go 仅为内置通道提供一种基于 protobuf 的传输编码。
//
// Message 不是并发安全的。提交给多路复用器后调用方不应再修改它。
package iso

import (
	"fmt"
	"sort"
	"strings"
)

// 常用字段号
const (
	FieldMTI          = 0
	FieldPAN          = 2
	FieldProcessing   = 3
	FieldAmount       = 4
	FieldTraceNumber  = 11
	FieldRetrievalRef = 37
	FieldResponseCode = 39
	FieldTerminalID   = 41
	FieldMerchantID   = 42
)

// Direction 消息方向
type Direction int

const (
	// DirectionUnknown 未设置
	DirectionUnknown Direction = iota
	// DirectionIncoming 入站
	DirectionIncoming
	// DirectionOutgoing 出站
	DirectionOutgoing
)

// String 返回方向字符串
func (d Direction) String() string {
	switch d {
	case DirectionIncoming:
		return "incoming"
	case DirectionOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// Message ISO-8583 消息
type Message struct {
	fields    map[int]string
	direction Direction
}

// New 创建指定 MTI 的消息
func New(mti string) *Message {
	m := &Message{fields: make(map[int]string)}
	if mti != "" {
		m.fields[FieldMTI] = mti
	}
	return m
}

// Set 设置字段值，返回自身以便链式调用
//
// 负字段号会被忽略。
func (m *Message) Set(field int, value string) *Message {
	if field < 0 {
		return m
	}
	if m.fields == nil {
		m.fields = make(map[int]string)
	}
	m.fields[field] = value
	return m
}

// Unset 删除字段
func (m *Message) Unset(fields ...int) {
	for _, f := range fields {
		delete(m.fields, f)
	}
}

// HasField 字段是否存在
func (m *Message) HasField(field int) bool {
	if m == nil {
		return false
	}
	_, ok := m.fields[field]
	return ok
}

// GetString 返回字段值，不存在时返回空字符串
func (m *Message) GetString(field int) string {
	if m == nil {
		return ""
	}
	return m.fields[field]
}

// MTI 返回消息类型标识
func (m *Message) MTI() string {
	return m.GetString(FieldMTI)
}

// SetMTI 设置消息类型标识
func (m *Message) SetMTI(mti string) {
	m.Set(FieldMTI, mti)
}

// Fields 返回已设置字段号（升序）
func (m *Message) Fields() []int {
	if m == nil {
		return nil
	}
	out := make([]int, 0, len(m.fields))
	for f := range m.fields {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

// Len 返回字段数量
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.fields)
}

// Direction 返回消息方向
func (m *Message) Direction() Direction {
	return m.direction
}

// SetDirection 设置消息方向
func (m *Message) SetDirection(d Direction) {
	m.direction = d
}

// validMTI 4 位数字
func validMTI(mti string) bool {
	if len(mti) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if mti[i] < '0' || mti[i] > '9' {
			return false
		}
	}
	return true
}

// IsRequest MTI 第三位（功能位）为偶数
func (m *Message) IsRequest() bool {
	mti := m.MTI()
	return validMTI(mti) && (mti[2]-'0')%2 == 0
}

// IsResponse MTI 第三位（功能位）为奇数
func (m *Message) IsResponse() bool {
	mti := m.MTI()
	return validMTI(mti) && (mti[2]-'0')%2 == 1
}

// SetResponseMTI 将请求 MTI 转换为对应的响应 MTI（0200 → 0210）
func (m *Message) SetResponseMTI() error {
	mti := m.MTI()
	if !validMTI(mti) {
		return fmt.Errorf("iso: invalid MTI %q", mti)
	}
	if !m.IsRequest() {
		return fmt.Errorf("iso: MTI %s is not a request", mti)
	}
	b := []byte(mti)
	b[2]++
	m.SetMTI(string(b))
	return nil
}

// Clone 深拷贝
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := &Message{
		fields:    make(map[int]string, len(m.fields)),
		direction: m.direction,
	}
	for k, v := range m.fields {
		c.fields[k] = v
	}
	return c
}

// String 返回 "0200[11=000001 41=29110001]" 格式
func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(m.MTI())
	sb.WriteByte('[')
	first := true
	for _, f := range m.Fields() {
		if f == FieldMTI {
			continue
		}
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		fmt.Fprintf(&sb, "%d=%s", f, m.fields[f])
	}
	sb.WriteByte(']')
	return sb.String()
}
