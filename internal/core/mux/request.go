package mux

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
)

var _ interfaces.PendingRequest = (*Request)(nil)

// Request 挂起请求句柄
//
// 响应只能被设置一次。done 在设置响应或被引擎取消时关闭，
// 等待者据此醒来。
type Request struct {
	id    string
	msg   *iso.Message
	clock clock.Clock

	mu           sync.Mutex
	resp         *iso.Message
	done         chan struct{}
	closed       bool
	expired      bool
	requestTime  time.Time
	transmitTime time.Time
	responseTime time.Time
}

// NewRequest 使用系统时钟创建句柄
func NewRequest(m *iso.Message) *Request {
	return newRequest(m, clock.New())
}

func newRequest(m *iso.Message, clk clock.Clock) *Request {
	return &Request{
		id:          uuid.NewString(),
		msg:         m,
		clock:       clk,
		done:        make(chan struct{}),
		requestTime: clk.Now(),
	}
}

// ID 句柄标识
func (r *Request) ID() string { return r.id }

// Message 出站报文
func (r *Request) Message() *iso.Message { return r.msg }

// AwaitResponse 等待响应
//
// timeout 为 0 时只受 ctx 和引擎取消约束。返回 nil 时句柄被标记为过期。
func (r *Request) AwaitResponse(ctx context.Context, timeout time.Duration) *iso.Message {
	r.mu.Lock()
	if r.resp != nil {
		resp := r.resp
		r.mu.Unlock()
		return resp
	}
	r.mu.Unlock()

	var timeoutC <-chan time.Time
	if timeout > 0 {
		t := r.clock.Timer(timeout)
		defer t.Stop()
		timeoutC = t.C
	}

	select {
	case <-r.done:
	case <-timeoutC:
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resp == nil {
		r.expired = true
	}
	return r.resp
}

// SetResponse 设置响应并唤醒等待者
//
// 已有响应、已过期或已被取消时返回 false，响应不会被覆盖。
func (r *Request) SetResponse(m *iso.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resp != nil || r.expired || r.closed {
		return false
	}
	r.resp = m
	r.responseTime = r.clock.Now()
	r.closed = true
	close(r.done)
	return true
}

// SetTransmitted 记录发送时间
func (r *Request) SetTransmitted() {
	r.mu.Lock()
	r.transmitTime = r.clock.Now()
	r.mu.Unlock()
}

// clearTransmitted 发送失败时撤销发送时间
func (r *Request) clearTransmitted() {
	r.mu.Lock()
	r.transmitTime = time.Time{}
	r.mu.Unlock()
}

// cancel 引擎硬终止时唤醒等待者，不设置响应
func (r *Request) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.done)
}

// IsExpired 是否已过期
func (r *Request) IsExpired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// IsTransmitted 是否已实际发送
func (r *Request) IsTransmitted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.transmitTime.IsZero()
}

// Response 当前响应，未收到时为 nil
func (r *Request) Response() *iso.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resp
}

// RequestTime 创建时间
func (r *Request) RequestTime() time.Time {
	return r.requestTime
}

// TransmitTime 发送时间，未发送时为零值
func (r *Request) TransmitTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transmitTime
}

// ResponseTime 收到响应的时间，未收到时为零值
func (r *Request) ResponseTime() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responseTime
}

// ResponseLatency 发送到收到响应的耗时
func (r *Request) ResponseLatency() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resp == nil || r.transmitTime.IsZero() {
		return 0
	}
	return r.responseTime.Sub(r.transmitTime)
}
