package spacemux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// logger 空间多路复用器日志
var logger = log.Logger("core/spacemux")

var (
	// ErrNilSpace 空间为空
	ErrNilSpace = errors.New("spacemux: nil space")

	// ErrNilMessage 报文为空
	ErrNilMessage = errors.New("spacemux: nil message")

	// ErrNotImplemented 空间多路复用器不支持句柄提交
	ErrNotImplemented = errors.New("spacemux: enqueue not implemented")

	// ErrDuplicateKey 相同关联键的请求仍在等待
	ErrDuplicateKey = errors.New("spacemux: duplicate key")

	// ErrTerminated 已终止
	ErrTerminated = types.ErrTerminated
)

var _ interfaces.Multiplexer = (*SpaceMux)(nil)

// SpaceMux 基于元组空间的多路复用器
type SpaceMux struct {
	cfg   Config
	space interfaces.Space

	mu         sync.Mutex
	listener   interfaces.RequestListener
	listenerID string
	inflight   int
	terminated bool
	// idle 在途请求归零时关闭，由 Terminate 创建
	idle chan struct{}

	counters [types.NumCounters]atomic.Int64

	// ctx 硬终止时取消，唤醒所有等待中的请求
	ctx    context.Context
	cancel context.CancelFunc

	termOnce sync.Once
}

// New 创建空间多路复用器并在入站队列上注册监听
func New(sp interfaces.Space, opts ...Option) (*SpaceMux, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(sp, cfg)
}

// NewWithConfig 使用完整配置创建空间多路复用器
func NewWithConfig(sp interfaces.Space, cfg Config) (*SpaceMux, error) {
	if sp == nil {
		return nil, ErrNilSpace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	m := &SpaceMux{
		cfg:    cfg,
		space:  sp,
		ctx:    ctx,
		cancel: cancel,
	}
	m.listenerID = sp.AddListener(cfg.In, interfaces.SpaceListenerFunc(m.notify))
	return m, nil
}

// Name 实例名称
func (m *SpaceMux) Name() string { return m.cfg.Name }

// Key 计算报文的关联键
func (m *SpaceMux) Key(msg *iso.Message) (string, error) {
	if msg == nil {
		return "", ErrNilMessage
	}
	return buildKey(m.cfg.Out, msg, m.cfg.KeyFields, m.cfg.MTIMapping)
}

// ============================================================================
//                              请求
// ============================================================================

// Request 发送请求并等待响应
//
// 超时返回 (nil, nil)，ctx 取消返回 ctx.Err()，硬终止返回 ErrTerminated。
func (m *SpaceMux) Request(ctx context.Context, msg *iso.Message, timeout time.Duration) (*iso.Message, error) {
	key, err := m.Key(msg)
	if err != nil {
		return nil, err
	}
	if !m.begin() {
		return nil, ErrTerminated
	}
	defer m.end()

	req := key + ".req"
	if m.space.Rdp(req) != nil {
		return nil, ErrDuplicateKey
	}
	msg.SetDirection(iso.DirectionOutgoing)
	if err := m.space.Out(req, msg, 0); err != nil {
		return nil, err
	}
	if err := m.space.Out(m.cfg.Out, msg, timeout); err != nil {
		m.space.Inp(req)
		return nil, err
	}
	m.inc(types.CounterTransmitted)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	resp, err := m.space.In(wctx, key, timeout)
	if resp == nil && err == nil && m.space.Inp(req) == nil && m.cfg.NearMissWait > 0 {
		// 标记已被监听器取走，响应正在写入
		logger.Debug("响应与超时交错，额外等待", "mux", m.cfg.Name, "key", key)
		resp, err = m.space.In(wctx, key, m.cfg.NearMissWait)
	}
	if resp != nil {
		return resp, nil
	}

	m.space.Inp(req)
	m.inc(types.CounterRxExpired)
	switch {
	case err == nil:
		return nil, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case m.ctx.Err() != nil:
		return nil, ErrTerminated
	default:
		return nil, err
	}
}

// Send 写入出站队列，不等待响应
func (m *SpaceMux) Send(msg *iso.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	if m.isTerminated() {
		return ErrTerminated
	}
	msg.SetDirection(iso.DirectionOutgoing)
	if err := m.space.Out(m.cfg.Out, msg, 0); err != nil {
		return err
	}
	m.inc(types.CounterTransmitted)
	return nil
}

// Enqueue 不支持
func (m *SpaceMux) Enqueue(interfaces.PendingRequest) error {
	return ErrNotImplemented
}

// ============================================================================
//                              入站处理
// ============================================================================

// notify 入站队列写入回调
func (m *SpaceMux) notify(key string, _ *iso.Message) {
	msg := m.space.Inp(key)
	if msg == nil {
		return
	}
	m.inc(types.CounterReceived)

	k, err := m.Key(msg)
	if err == nil && m.space.Inp(k+".req") != nil {
		if err := m.space.Out(k, msg, m.cfg.responseTTL()); err != nil {
			logger.Warn("写入响应失败", "mux", m.cfg.Name, "key", k, "error", err)
		}
		return
	}
	m.unhandled(msg)
}

// unhandled 未匹配报文交给接收者，没有接收者时写入未匹配队列
func (m *SpaceMux) unhandled(msg *iso.Message) {
	m.mu.Lock()
	l := m.listener
	m.mu.Unlock()

	if l != nil {
		m.inc(types.CounterRxForwarded)
		m.forward(l, msg)
		return
	}

	m.inc(types.CounterRxUnmatched)
	if m.cfg.Unhandled == "" {
		logger.Debug("丢弃未匹配报文", "mux", m.cfg.Name, "mti", msg.MTI())
		return
	}
	if err := m.space.Out(m.cfg.Unhandled, msg, m.cfg.UnhandledTTL); err != nil {
		logger.Warn("写入未匹配队列失败", "mux", m.cfg.Name, "error", err)
	}
}

func (m *SpaceMux) forward(l interfaces.RequestListener, msg *iso.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("未匹配报文处理异常", "mux", m.cfg.Name, "panic", r)
		}
	}()
	l.Process(m, msg)
}

// SetRequestListener 设置未匹配消息接收者
func (m *SpaceMux) SetRequestListener(l interfaces.RequestListener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// ============================================================================
//                              状态与计数器
// ============================================================================

// IsConnected 就绪标记存在即视为已连接
func (m *SpaceMux) IsConnected() bool {
	return m.space.Rdp(m.cfg.Ready) != nil
}

// Counters 计数器快照
//
// Connects 和 TxExpired 由 adaptor 一侧负责，这里始终为 0。
func (m *SpaceMux) Counters() types.Counters {
	m.mu.Lock()
	inflight := int64(m.inflight)
	m.mu.Unlock()

	return types.Counters{
		Transmitted: m.counters[types.CounterTransmitted].Load(),
		Received:    m.counters[types.CounterReceived].Load(),
		RxExpired:   m.counters[types.CounterRxExpired].Load(),
		TxPending:   int64(m.space.Size(m.cfg.Out)),
		RxPending:   inflight,
		RxUnmatched: m.counters[types.CounterRxUnmatched].Load(),
		RxForwarded: m.counters[types.CounterRxForwarded].Load(),
	}
}

// ResetCounters 清零单调计数器
func (m *SpaceMux) ResetCounters() {
	for i := range m.counters {
		m.counters[i].Store(0)
	}
}

func (m *SpaceMux) inc(i types.CounterIndex) {
	m.counters[i].Add(1)
}

// ============================================================================
//                              终止
// ============================================================================

// Terminate 停止接受新请求，等待在途请求最多 grace 后唤醒剩余等待者
//
// grace 为 0 时无限等待。入站监听在最后移除。
func (m *SpaceMux) Terminate(grace time.Duration) error {
	m.termOnce.Do(func() {
		m.mu.Lock()
		m.terminated = true
		idle := make(chan struct{})
		if m.inflight == 0 {
			close(idle)
		} else {
			m.idle = idle
		}
		m.mu.Unlock()

		logger.Info("空间多路复用器终止中", "mux", m.cfg.Name)

		var timeoutC <-chan time.Time
		if grace > 0 {
			t := m.cfg.Clock.Timer(grace)
			defer t.Stop()
			timeoutC = t.C
		}
		select {
		case <-idle:
		case <-timeoutC:
			logger.Warn("宽限期结束，唤醒剩余请求", "mux", m.cfg.Name)
			m.cancel()
			<-idle
		}

		m.cancel()
		m.space.RemoveListener(m.cfg.In, m.listenerID)
		logger.Info("空间多路复用器已终止", "mux", m.cfg.Name)
	})
	return nil
}

// Stop 终止，宽限期取自 ctx 截止时间
func (m *SpaceMux) Stop(ctx context.Context) error {
	var grace time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		grace = time.Until(deadline)
		if grace <= 0 {
			grace = time.Millisecond
		}
	}
	return m.Terminate(grace)
}

func (m *SpaceMux) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminated {
		return false
	}
	m.inflight++
	return true
}

func (m *SpaceMux) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.inflight == 0 && m.idle != nil {
		close(m.idle)
		m.idle = nil
	}
}

func (m *SpaceMux) isTerminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}
