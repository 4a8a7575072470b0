// Package interfaces - Channel 报文通道接口
//
// 本文件定义多路复用器消费的通道抽象。通道的物理实现
// （TCP、WebSocket 或测试用内存通道）对多路复用器不透明。
package interfaces

import (
	"context"

	"github.com/dep2p/go-isomux/pkg/iso"
)

// Channel 双工、面向报文的网络端点
//
// 一个 Channel 只能被一个多路复用器持有。Send 可以与 Receive 并发调用，
// 但 Receive 只允许一个调用者。
//
// 错误约定:
//   - types.ErrConnectRefused: 对端拒绝连接，调用方退避后重试
//   - types.ErrProtocol: 报文编码或解码失败，该报文被丢弃
//   - io.EOF: Receive 时对端正常关闭
//   - 其他错误视为 IO 错误
type Channel interface {
	// Name 通道名称，用于日志和指标
	Name() string

	// Connect 建立连接
	Connect(ctx context.Context) error

	// Reconnect 断开（如已连接）后重新建立连接
	Reconnect(ctx context.Context) error

	// Disconnect 断开连接，重复调用无副作用
	Disconnect() error

	// IsConnected 当前是否可用
	IsConnected() bool

	// Send 发送一条报文
	Send(m *iso.Message) error

	// Receive 阻塞直到收到一条报文或连接失败
	Receive() (*iso.Message, error)
}

// Source 未匹配消息的来源，接收者可以通过它直接回复
type Source interface {
	// Send 向来源发送报文
	Send(m *iso.Message) error

	// IsConnected 来源是否仍然可用
	IsConnected() bool
}
