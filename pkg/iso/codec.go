package iso

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dep2p/go-isomux/pkg/types"
)

// ============================================================================
//                              传输编码
// ============================================================================
//
// 内置通道使用的报文编码：字段表转换为 structpb.Struct（键为十进制字段号），
// 以 protobuf 序列化，帧之间使用 varint 长度前缀分隔（protodelim）。
// 这不是 ISO-8583 的打包格式，只用于 isomux 节点之间互通。

// DefaultMaxFrameSize 单帧最大字节数
const DefaultMaxFrameSize = 64 * 1024

var marshalOptions = proto.MarshalOptions{Deterministic: true}

// toStruct 将消息转换为 structpb.Struct
func toStruct(m *Message) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, m.Len())}
	for f, v := range m.fields {
		s.Fields[strconv.Itoa(f)] = structpb.NewStringValue(v)
	}
	return s
}

// fromStruct 将 structpb.Struct 转换为消息
func fromStruct(s *structpb.Struct) (*Message, error) {
	m := &Message{fields: make(map[int]string, len(s.GetFields()))}
	for k, v := range s.GetFields() {
		f, err := strconv.Atoi(k)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("%w: bad field number %q", types.ErrProtocol, k)
		}
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%w: field %d is not a string", types.ErrProtocol, f)
		}
		m.fields[f] = sv.StringValue
	}
	return m, nil
}

// Marshal 编码单条消息
func Marshal(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", types.ErrProtocol)
	}
	data, err := marshalOptions.Marshal(toStruct(m))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProtocol, err)
	}
	return data, nil
}

// Unmarshal 解码单条消息
func Unmarshal(data []byte) (*Message, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrProtocol, err)
	}
	return fromStruct(s)
}

// WriteDelimited 写入一帧（varint 长度前缀 + 消息体）
//
// 编码失败返回 types.ErrProtocol，写入失败原样返回 IO 错误。
func WriteDelimited(w io.Writer, m *Message) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	frame := protowire.AppendVarint(make([]byte, 0, len(data)+binary.MaxVarintLen64), uint64(len(data)))
	frame = append(frame, data...)
	_, err = w.Write(frame)
	return err
}

// ReadDelimited 读取一帧
//
// 流正常结束返回 io.EOF；帧过大或内容非法返回 types.ErrProtocol；
// 其余为 IO 错误。maxSize <= 0 时使用 DefaultMaxFrameSize。
func ReadDelimited(r *bufio.Reader, maxSize int) (*Message, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	s := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{MaxSize: int64(maxSize)}
	if err := opts.UnmarshalFrom(r, s); err != nil {
		return nil, classifyReadError(err)
	}
	return fromStruct(s)
}

// classifyReadError 区分 EOF / 协议错误 / IO 错误
func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var tooLarge *protodelim.SizeTooLargeError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: %v", types.ErrProtocol, err)
	}
	if errors.Is(err, proto.Error) {
		return fmt.Errorf("%w: %v", types.ErrProtocol, err)
	}
	return err
}
