// Package interfaces - Multiplexer 多路复用器接口
//
// 本文件定义多路复用器对调用方暴露的能力。队列引擎（internal/core/mux）
// 和元组空间变体（internal/core/spacemux）是两个互不共享状态的实现。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

// KeyDeriver 从报文推导关联键，必须是纯函数
type KeyDeriver interface {
	Key(m *iso.Message) string
}

// KeyDeriverFunc 函数适配器
type KeyDeriverFunc func(m *iso.Message) string

// Key 实现 KeyDeriver
func (f KeyDeriverFunc) Key(m *iso.Message) string {
	return f(m)
}

// PendingRequest 挂起请求句柄
//
// 单次赋值：响应最多被设置一次，设置后不再改变。
// 按约定只有一个等待者。
type PendingRequest interface {
	// ID 句柄标识
	ID() string

	// Message 出站报文
	Message() *iso.Message

	// AwaitResponse 等待响应
	//
	// timeout 为 0 表示无限等待。返回 nil 表示超时或上下文取消，
	// 此时句柄被标记为过期。已有响应时重复调用直接返回该响应。
	AwaitResponse(ctx context.Context, timeout time.Duration) *iso.Message

	// IsExpired 是否已过期
	IsExpired() bool

	// IsTransmitted 是否已实际发送
	IsTransmitted() bool

	// ResponseLatency 发送到收到响应的耗时，无响应时为 0
	ResponseLatency() time.Duration
}

// Multiplexer 多路复用器
//
// 将一个异步全双工通道转换为同步请求/响应调用。
type Multiplexer interface {
	// Request 发送请求并等待匹配的响应
	//
	// 超时返回 (nil, nil)；上下文取消返回 ctx.Err()；
	// 终止后调用或等待中被硬终止唤醒返回 types.ErrTerminated。
	Request(ctx context.Context, m *iso.Message, timeout time.Duration) (*iso.Message, error)

	// Send 非阻塞提交一条不需要响应的报文
	Send(m *iso.Message) error

	// Enqueue 非阻塞提交一个挂起请求句柄
	Enqueue(r PendingRequest) error

	// IsConnected 底层通道是否可用
	IsConnected() bool

	// Terminate 关闭多路复用器
	//
	// grace 为软关闭阶段等待发送循环的最长时间，0 表示一直等待。
	Terminate(grace time.Duration) error

	// Counters 计数器快照，不阻塞
	Counters() types.Counters

	// ResetCounters 清零单调计数器
	ResetCounters()

	// SetRequestListener 设置未匹配消息接收者，nil 表示移除
	SetRequestListener(l RequestListener)
}
