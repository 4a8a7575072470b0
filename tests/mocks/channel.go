package mocks

import (
	"context"
	"sync"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

var _ interfaces.Channel = (*MockChannel)(nil)

// MockChannel 内存通道
//
// 记录发送顺序，可以脚本化连接失败和发送失败，通过 Inject 注入入站报文。
// Disconnect 会让阻塞中的 Receive 返回 types.ErrChannelClosed。
type MockChannel struct {
	name string

	mu          sync.Mutex
	connected   bool
	down        chan struct{}
	sent        []*iso.Message
	connects    int
	disconnects int
	connectErrs []error
	sendErrs    []error
	sentCond    chan struct{}

	inbound chan *iso.Message

	// OnSend 发送成功后调用（不持锁），可用于自动应答
	OnSend func(m *iso.Message)
}

// NewMockChannel 创建未连接的内存通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:     name,
		down:     closedChan(),
		inbound:  make(chan *iso.Message, 1024),
		sentCond: make(chan struct{}),
	}
}

// NewConnectedMockChannel 创建已连接的内存通道
func NewConnectedMockChannel(name string) *MockChannel {
	c := NewMockChannel(name)
	c.connected = true
	c.down = make(chan struct{})
	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Name 通道名称
func (c *MockChannel) Name() string { return c.name }

// FailConnect 让接下来的 Connect/Reconnect 依次返回这些错误
func (c *MockChannel) FailConnect(errs ...error) {
	c.mu.Lock()
	c.connectErrs = append(c.connectErrs, errs...)
	c.mu.Unlock()
}

// FailSend 让接下来的 Send 依次返回这些错误
func (c *MockChannel) FailSend(errs ...error) {
	c.mu.Lock()
	c.sendErrs = append(c.sendErrs, errs...)
	c.mu.Unlock()
}

// Connect 建立连接
func (c *MockChannel) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if len(c.connectErrs) > 0 {
		err := c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	if !c.connected {
		c.connected = true
		c.down = make(chan struct{})
	}
	return nil
}

// Reconnect 断开后重新连接
func (c *MockChannel) Reconnect(ctx context.Context) error {
	_ = c.Disconnect()
	return c.Connect(ctx)
}

// Disconnect 断开连接
func (c *MockChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		c.connected = false
		c.disconnects++
		close(c.down)
	}
	return nil
}

// IsConnected 是否已连接
func (c *MockChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send 记录报文
func (c *MockChannel) Send(m *iso.Message) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return types.ErrNotConnected
	}
	if len(c.sendErrs) > 0 {
		err := c.sendErrs[0]
		c.sendErrs = c.sendErrs[1:]
		if err != nil {
			c.mu.Unlock()
			return err
		}
	}
	c.sent = append(c.sent, m)
	close(c.sentCond)
	c.sentCond = make(chan struct{})
	onSend := c.OnSend
	c.mu.Unlock()

	if onSend != nil {
		onSend(m)
	}
	return nil
}

// Receive 阻塞直到有入站报文或连接断开
func (c *MockChannel) Receive() (*iso.Message, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, types.ErrNotConnected
	}
	down := c.down
	c.mu.Unlock()

	select {
	case m := <-c.inbound:
		return m, nil
	case <-down:
		return nil, types.ErrChannelClosed
	}
}

// Inject 注入一条入站报文
func (c *MockChannel) Inject(m *iso.Message) {
	c.inbound <- m
}

// Sent 已发送报文（按发送顺序）
func (c *MockChannel) Sent() []*iso.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*iso.Message, len(c.sent))
	copy(out, c.sent)
	return out
}

// SentCount 已发送数量
func (c *MockChannel) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

// Connects Connect/Reconnect 调用次数
func (c *MockChannel) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Disconnects 实际断开次数
func (c *MockChannel) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// WaitSent 等待已发送数量达到 n，ctx 结束时返回 false
func (c *MockChannel) WaitSent(ctx context.Context, n int) bool {
	for {
		c.mu.Lock()
		if len(c.sent) >= n {
			c.mu.Unlock()
			return true
		}
		cond := c.sentCond
		c.mu.Unlock()

		select {
		case <-cond:
		case <-ctx.Done():
			return false
		}
	}
}

// Echo 返回一个 OnSend 回调：把请求 MTI 转为响应 MTI 后注入
func (c *MockChannel) Echo() func(m *iso.Message) {
	return func(m *iso.Message) {
		resp := m.Clone()
		if err := resp.SetResponseMTI(); err != nil {
			return
		}
		resp.Set(iso.FieldResponseCode, "00")
		c.Inject(resp)
	}
}
