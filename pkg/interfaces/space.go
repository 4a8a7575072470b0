// Package interfaces - Space 阻塞式关联存储
//
// 元组空间：同一个键下保存一个 FIFO 条目序列，
// 支持带超时的阻塞读取和写入通知。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-isomux/pkg/iso"
)

// Space 元组空间
//
// 线程安全：实现必须保证所有方法可并发调用。
type Space interface {
	// Out 在键尾部写入条目，ttl 为 0 表示永不过期
	Out(key string, m *iso.Message, ttl time.Duration) error

	// Push 在键头部写入条目
	Push(key string, m *iso.Message, ttl time.Duration) error

	// In 取走键的第一个条目，阻塞直到有条目、超时或上下文取消
	//
	// timeout 为 0 表示无限等待。超时返回 (nil, nil)。
	In(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error)

	// InExpiry 同 In，额外返回条目的过期时间，零值表示永不过期
	InExpiry(ctx context.Context, key string, timeout time.Duration) (*iso.Message, time.Time, error)

	// Rd 读取但不取走键的第一个条目，语义同 In
	Rd(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error)

	// Inp 非阻塞取走，无条目返回 nil
	Inp(key string) *iso.Message

	// Rdp 非阻塞读取，无条目返回 nil
	Rdp(key string) *iso.Message

	// Size 键下未过期条目数量
	Size(key string) int

	// Keys 当前存在条目的键
	Keys() []string

	// AddListener 注册写入通知，返回注册标识
	AddListener(key string, l SpaceListener) string

	// RemoveListener 移除写入通知
	RemoveListener(key string, id string)

	// Close 释放资源，唤醒所有阻塞读取
	Close() error
}

// SpaceListener 写入通知
//
// Notify 在写入完成后调用，不持有空间内部锁，可以调用 Inp 消费条目。
type SpaceListener interface {
	Notify(key string, m *iso.Message)
}

// SpaceListenerFunc 函数适配器
type SpaceListenerFunc func(key string, m *iso.Message)

// Notify 实现 SpaceListener
func (f SpaceListenerFunc) Notify(key string, m *iso.Message) {
	f(key, m)
}
