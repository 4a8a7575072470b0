package types

import (
	"errors"
	"io"
)

// ============================================================================
//                              通道故障分类
// ============================================================================
//
// 通道实现返回的错误按以下方式归类，多路复用器据此决定退避、丢弃或重连：
//   - ErrConnectRefused: 连接被拒绝，退避后重试
//   - ErrProtocol: 编解码/协议错误，丢弃当前消息继续处理
//   - io.EOF: 对端正常关闭
//   - 其他错误: 视为 I/O 错误，标记通道不可用并触发重连

var (
	// ErrConnectRefused 连接被拒绝
	ErrConnectRefused = errors.New("channel: connection refused")

	// ErrProtocol 协议或编解码错误
	ErrProtocol = errors.New("channel: protocol error")

	// ErrNotConnected 通道未连接
	ErrNotConnected = errors.New("channel: not connected")

	// ErrChannelClosed 通道已关闭
	ErrChannelClosed = errors.New("channel: closed")

	// ErrReconnectUnsupported 服务端通道不支持重连
	ErrReconnectUnsupported = errors.New("channel: reconnect not supported")
)

// ============================================================================
//                              多路复用器
// ============================================================================

// ErrTerminated 多路复用器已终止
//
// 两种多路复用器共用该值：终止后提交返回它，被硬终止唤醒的 Request 也返回它。
var ErrTerminated = errors.New("mux: terminated")

// IsProtocolError 判断是否为协议错误
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// IsConnectRefused 判断是否为连接拒绝
func IsConnectRefused(err error) bool {
	return errors.Is(err, ErrConnectRefused)
}

// IsEOF 判断是否为对端正常关闭
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
