// Package notify 提供元组空间共用的等待唤醒和写入通知
//
// 内存空间和 badger 空间都用它实现阻塞读取：
// 先调用 Wait 取得键的唤醒通道，再尝试读取，读不到时在通道上等待。
// 写入方在写入后调用 Wake 关闭该通道，因此不会丢失唤醒。
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
)

// ErrClosed 空间已关闭
var ErrClosed = errors.New("space: closed")

type listenerEntry struct {
	id string
	l  interfaces.SpaceListener
}

// Broadcaster 按键管理等待者和监听者
type Broadcaster struct {
	mu        sync.Mutex
	waiters   map[string]chan struct{}
	listeners map[string][]listenerEntry
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewBroadcaster 创建 Broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		waiters:   make(map[string]chan struct{}),
		listeners: make(map[string][]listenerEntry),
		closeCh:   make(chan struct{}),
	}
}

// Wait 返回键的唤醒通道，下一次 Wake(key) 时关闭
func (b *Broadcaster) Wait(key string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.waiters[key]
	if !ok {
		ch = make(chan struct{})
		b.waiters[key] = ch
	}
	return ch
}

// Wake 唤醒键上的所有等待者
func (b *Broadcaster) Wake(key string) {
	b.mu.Lock()
	ch, ok := b.waiters[key]
	if ok {
		delete(b.waiters, key)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// WakeAll 唤醒所有等待者并释放唤醒通道
//
// 被唤醒的读取方会重新检查并继续等待，GC 周期调用以回收超时键留下的通道。
func (b *Broadcaster) WakeAll() {
	b.mu.Lock()
	waiters := b.waiters
	b.waiters = make(map[string]chan struct{})
	b.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// AddListener 注册监听者，返回注册标识
func (b *Broadcaster) AddListener(key string, l interfaces.SpaceListener) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.listeners[key] = append(b.listeners[key], listenerEntry{id: id, l: l})
	b.mu.Unlock()
	return id
}

// RemoveListener 移除监听者
func (b *Broadcaster) RemoveListener(key, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.listeners[key]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(b.listeners, key)
		return
	}
	b.listeners[key] = entries
}

// Notify 依次通知键上的监听者，调用时不持有任何锁
func (b *Broadcaster) Notify(key string, m *iso.Message) {
	b.mu.Lock()
	entries := b.listeners[key]
	b.mu.Unlock()

	for _, e := range entries {
		e.l.Notify(key, m)
	}
}

// Close 唤醒所有阻塞读取，之后 Block 立即返回 ErrClosed
func (b *Broadcaster) Close() {
	b.closeOnce.Do(func() { close(b.closeCh) })
}

// Done 关闭信号
func (b *Broadcaster) Done() <-chan struct{} {
	return b.closeCh
}

// Block 阻塞读取的通用循环
//
// try 返回 nil 表示暂无条目。timeout 为 0 时无限等待，超时返回 (nil, nil)。
func (b *Broadcaster) Block(ctx context.Context, clk clock.Clock, key string, timeout time.Duration,
	try func() (*iso.Message, error)) (*iso.Message, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := clk.Timer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	for {
		select {
		case <-b.closeCh:
			return nil, ErrClosed
		default:
		}

		wake := b.Wait(key)
		m, err := try()
		if err != nil || m != nil {
			return m, err
		}

		select {
		case <-wake:
		case <-timeoutC:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closeCh:
			return nil, ErrClosed
		}
	}
}
