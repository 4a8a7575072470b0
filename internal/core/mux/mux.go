package mux

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// logger 多路复用器日志
var logger = log.Logger("core/mux")

var (
	_ interfaces.Multiplexer = (*Mux)(nil)
	_ interfaces.Source      = (*Mux)(nil)
)

// txItem 发送队列元素：裸报文或挂起请求句柄
type txItem struct {
	msg *iso.Message
	req *Request
}

// Mux 基于队列的多路复用器
type Mux struct {
	cfg     Config
	channel interfaces.Channel
	deriver interfaces.KeyDeriver
	clock   clock.Clock

	// mu 保护发送队列、挂起表和接收者
	mu       sync.Mutex
	txQueue  []txItem
	pending  map[string]*Request
	listener interfaces.RequestListener

	counters [types.NumCounters]atomic.Int64
	state    atomic.Int32

	// 唤醒信号，容量 1，非阻塞发送
	workCh  chan struct{} // 唤醒发送循环
	connCh  chan struct{} // 唤醒接收循环
	drainCh chan struct{} // 挂起表变化，唤醒终止流程

	// 终止信号，关闭即生效
	softCh   chan struct{}
	hardCh   chan struct{}
	softOnce sync.Once
	hardOnce sync.Once

	// ctx 在硬终止时取消，用于中断 Connect
	ctx    context.Context
	cancel context.CancelFunc

	started       atomic.Bool
	senderDone    chan struct{}
	receiverDone  chan struct{}
	terminateOnce sync.Once
	terminateErr  error

	unmatchedLog *rate.Limiter
}

// New 创建多路复用器
//
// 配置错误在这里同步返回。返回的实例需要调用 Start 才开始收发。
func New(ch interfaces.Channel, opts ...Option) (*Mux, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(ch, cfg)
}

// NewWithConfig 使用完整配置创建多路复用器
func NewWithConfig(ch interfaces.Channel, cfg Config) (*Mux, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Name == "" {
		cfg.Name = ch.Name()
	}

	deriver := cfg.KeyDeriver
	if deriver == nil {
		deriver = NewKeyDeriver(cfg.TraceField, cfg.Clock)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Mux{
		cfg:          cfg,
		channel:      ch,
		deriver:      deriver,
		clock:        cfg.Clock,
		pending:      make(map[string]*Request),
		workCh:       make(chan struct{}, 1),
		connCh:       make(chan struct{}, 1),
		drainCh:      make(chan struct{}, 1),
		softCh:       make(chan struct{}),
		hardCh:       make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		senderDone:   make(chan struct{}),
		receiverDone: make(chan struct{}),
		unmatchedLog: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	m.state.Store(int32(types.MuxStateDisconnected))
	return m, nil
}

// Name 实例名称
func (m *Mux) Name() string {
	return m.cfg.Name
}

// Channel 底层通道
func (m *Mux) Channel() interfaces.Channel {
	return m.channel
}

// KeyDeriver 当前使用的关联键推导器
func (m *Mux) KeyDeriver() interfaces.KeyDeriver {
	return m.deriver
}

// Start 启动发送和接收循环
func (m *Mux) Start(_ context.Context) error {
	if m.isSoft() {
		return ErrTerminated
	}
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	go m.sendLoop()
	go m.receiveLoop()

	logger.Info("多路复用器已启动", "mux", m.cfg.Name, "channel", m.channel.Name())
	return nil
}

// Stop 终止多路复用器
//
// 宽限期取自 ctx 截止时间，没有截止时间时使用 TerminateGrace。
// ctx 在终止完成前结束时升级为硬终止。
func (m *Mux) Stop(ctx context.Context) error {
	grace := m.cfg.TerminateGrace
	if deadline, ok := ctx.Deadline(); ok {
		grace = time.Until(deadline)
		if grace <= 0 {
			grace = time.Millisecond
		}
	}

	done := make(chan error, 1)
	go func() { done <- m.Terminate(grace) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		logger.Warn("停止超时，强制终止", "mux", m.cfg.Name)
		m.hardTerminate()
		return <-done
	}
}

// ============================================================================
//                              提交
// ============================================================================

// NewRequest 使用引擎时钟创建句柄
func (m *Mux) NewRequest(msg *iso.Message) *Request {
	return newRequest(msg, m.clock)
}

// Send 提交不需要响应的报文
func (m *Mux) Send(msg *iso.Message) error {
	if msg == nil {
		return ErrNilMessage
	}
	return m.enqueue(txItem{msg: msg})
}

// Enqueue 提交挂起请求句柄
//
// 只接受本包创建的 *Request。
func (m *Mux) Enqueue(r interfaces.PendingRequest) error {
	req, ok := r.(*Request)
	if !ok || req == nil {
		return ErrUnsupportedRequest
	}
	if req.msg == nil {
		return ErrNilMessage
	}
	return m.enqueue(txItem{req: req})
}

// Request 发送请求并等待响应
//
// 超时返回 (nil, nil)，ctx 取消返回 ctx.Err()，硬终止返回 ErrTerminated。
func (m *Mux) Request(ctx context.Context, msg *iso.Message, timeout time.Duration) (*iso.Message, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	req := m.NewRequest(msg)
	if err := m.enqueue(txItem{req: req}); err != nil {
		return nil, err
	}

	resp := req.AwaitResponse(ctx, timeout)
	if resp != nil {
		return resp, nil
	}
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case m.isHard():
		return nil, ErrTerminated
	default:
		return nil, nil
	}
}

func (m *Mux) enqueue(it txItem) error {
	m.mu.Lock()
	if m.isSoft() {
		m.mu.Unlock()
		return ErrTerminated
	}
	m.txQueue = append(m.txQueue, it)
	m.mu.Unlock()

	signal(m.workCh)
	return nil
}

// SetRequestListener 设置未匹配消息接收者
func (m *Mux) SetRequestListener(l interfaces.RequestListener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

// ============================================================================
//                              状态与计数器
// ============================================================================

// IsConnected 通道是否可用
func (m *Mux) IsConnected() bool {
	return m.channel.IsConnected()
}

// State 当前状态
func (m *Mux) State() types.MuxState {
	return types.MuxState(m.state.Load())
}

// setState 设置状态，终止流程开始后只接受终止相关状态
func (m *Mux) setState(s types.MuxState) {
	for {
		cur := types.MuxState(m.state.Load())
		if cur == s {
			return
		}
		if cur == types.MuxStateTerminated {
			return
		}
		if cur == types.MuxStateTerminating && s != types.MuxStateTerminated {
			return
		}
		if m.state.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

// Counters 计数器快照
func (m *Mux) Counters() types.Counters {
	m.mu.Lock()
	txPending := int64(len(m.txQueue))
	rxPending := int64(len(m.pending))
	m.mu.Unlock()

	return types.Counters{
		Connects:    m.counters[types.CounterConnects].Load(),
		Transmitted: m.counters[types.CounterTransmitted].Load(),
		Received:    m.counters[types.CounterReceived].Load(),
		TxExpired:   m.counters[types.CounterTxExpired].Load(),
		RxExpired:   m.counters[types.CounterRxExpired].Load(),
		TxPending:   txPending,
		RxPending:   rxPending,
		RxUnmatched: m.counters[types.CounterRxUnmatched].Load(),
		RxForwarded: m.counters[types.CounterRxForwarded].Load(),
	}
}

// ResetCounters 清零单调计数器，两个挂起量由实时大小计算不受影响
func (m *Mux) ResetCounters() {
	for i := range m.counters {
		m.counters[i].Store(0)
	}
}

func (m *Mux) inc(i types.CounterIndex) int64 {
	return m.counters[i].Add(1)
}

// ============================================================================
//                              内部辅助
// ============================================================================

// signal 非阻塞唤醒
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m *Mux) isSoft() bool {
	select {
	case <-m.softCh:
		return true
	default:
		return false
	}
}

func (m *Mux) isHard() bool {
	select {
	case <-m.hardCh:
		return true
	default:
		return false
	}
}

// sleep 可被硬终止打断的等待，被打断时返回 false
func (m *Mux) sleep(d time.Duration) bool {
	if d <= 0 {
		return !m.isHard()
	}
	t := m.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.hardCh:
		return false
	}
}

func (m *Mux) queueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txQueue)
}

func (m *Mux) pendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// sweep 移除挂起表中已过期的句柄，返回移除数量
func (m *Mux) sweep() int {
	m.mu.Lock()
	n := 0
	for k, r := range m.pending {
		if r.IsExpired() {
			delete(m.pending, k)
			n++
		}
	}
	m.mu.Unlock()

	if n > 0 {
		logger.Debug("清理过期挂起请求", "mux", m.cfg.Name, "count", n)
		m.pendingChanged()
	}
	return n
}

// pendingChanged 挂起表变小后通知终止流程和接收循环
func (m *Mux) pendingChanged() {
	if m.isSoft() {
		signal(m.drainCh)
		signal(m.connCh)
	}
}
