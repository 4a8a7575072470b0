package adaptor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// logger 通道适配器日志
var logger = log.Logger("core/adaptor")

var (
	// ErrNilChannel 通道为空
	ErrNilChannel = errors.New("adaptor: nil channel")

	// ErrNilSpace 空间为空
	ErrNilSpace = errors.New("adaptor: nil space")

	// ErrStopped 适配器已停止
	ErrStopped = errors.New("adaptor: stopped")
)

// Adaptor 通道适配器
type Adaptor struct {
	cfg     Config
	channel interfaces.Channel
	space   interfaces.Space

	connects    atomic.Int64
	transmitted atomic.Int64
	received    atomic.Int64
	txExpired   atomic.Int64

	// readyMu 串行化就绪标记的写入和取走
	readyMu sync.Mutex
	ready   bool

	// connCh 连接尝试后唤醒接收循环，容量 1
	connCh chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	wg      sync.WaitGroup

	stopOnce sync.Once
	stopErr  error

	connectLog *rate.Limiter
}

// New 创建通道适配器
func New(ch interfaces.Channel, sp interfaces.Space, opts ...Option) (*Adaptor, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(ch, sp, cfg)
}

// NewWithConfig 使用完整配置创建通道适配器
func NewWithConfig(ch interfaces.Channel, sp interfaces.Space, cfg Config) (*Adaptor, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	if sp == nil {
		return nil, ErrNilSpace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	return &Adaptor{
		cfg:        cfg,
		channel:    ch,
		space:      sp,
		connCh:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		connectLog: rate.NewLimiter(rate.Every(time.Minute), 3),
	}, nil
}

// Name 实例名称
func (a *Adaptor) Name() string { return a.cfg.Name }

// InQueue 入站队列名
func (a *Adaptor) InQueue() string { return a.cfg.In }

// OutQueue 出站队列名
func (a *Adaptor) OutQueue() string { return a.cfg.Out }

// ReadyKey 就绪标记键
func (a *Adaptor) ReadyKey() string { return a.cfg.Ready }

// Start 启动发送和接收循环
func (a *Adaptor) Start(_ context.Context) error {
	if a.ctx.Err() != nil {
		return ErrStopped
	}
	if !a.started.CompareAndSwap(false, true) {
		return nil
	}

	// 清除上次运行残留的就绪标记
	a.space.Inp(a.cfg.Ready)

	a.wg.Add(2)
	go a.sendLoop()
	go a.receiveLoop()

	logger.Info("通道适配器已启动", "adaptor", a.cfg.Name, "channel", a.channel.Name(),
		"in", a.cfg.In, "out", a.cfg.Out)
	return nil
}

// Stop 停止循环并断开通道
//
// 出站队列中尚未发送的报文留在空间中。
func (a *Adaptor) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.cancel()
		if err := a.channel.Disconnect(); err != nil {
			logger.Debug("断开通道失败", "adaptor", a.cfg.Name, "error", err)
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.stopErr = ctx.Err()
		}
		a.markNotReady()
		logger.Info("通道适配器已停止", "adaptor", a.cfg.Name)
	})
	return a.stopErr
}

// IsConnected 通道是否可用
func (a *Adaptor) IsConnected() bool {
	return a.channel.IsConnected()
}

// Counters 计数器快照，只包含适配器可观测的字段
func (a *Adaptor) Counters() types.Counters {
	return types.Counters{
		Connects:    a.connects.Load(),
		Transmitted: a.transmitted.Load(),
		Received:    a.received.Load(),
		TxExpired:   a.txExpired.Load(),
		TxPending:   int64(a.space.Size(a.cfg.Out)),
	}
}

// ResetCounters 清零计数器
func (a *Adaptor) ResetCounters() {
	a.connects.Store(0)
	a.transmitted.Store(0)
	a.received.Store(0)
	a.txExpired.Store(0)
}

// ============================================================================
//                              发送循环
// ============================================================================

func (a *Adaptor) sendLoop() {
	defer a.wg.Done()

	first := true
	for a.ctx.Err() == nil {
		if !a.channel.IsConnected() {
			a.markNotReady()
			if !first && !a.sleep(a.cfg.ReconnectDelay) {
				return
			}
			if !a.connect(first) && !a.sleep(a.cfg.RetryDelay) {
				return
			}
			first = false
			continue
		}
		a.markReady()

		// 有限等待，以便及时发现接收循环检测到的断线
		m, exp, err := a.space.InExpiry(a.ctx, a.cfg.Out, a.cfg.RetryDelay)
		if err != nil {
			if a.ctx.Err() == nil {
				logger.Warn("读取出站队列失败，发送循环退出", "adaptor", a.cfg.Name, "error", err)
			}
			return
		}
		if m != nil {
			a.transmit(m, exp)
		}
	}
}

func (a *Adaptor) connect(first bool) bool {
	var err error
	if first {
		err = a.channel.Connect(a.ctx)
	} else {
		err = a.channel.Reconnect(a.ctx)
	}
	a.connects.Add(1)
	signal(a.connCh)

	if err != nil {
		if a.ctx.Err() != nil {
			return false
		}
		if a.connectLog.Allow() {
			logger.Warn("连接失败", "adaptor", a.cfg.Name, "channel", a.channel.Name(), "error", err)
		}
		return false
	}

	logger.Info("通道已连接", "adaptor", a.cfg.Name, "channel", a.channel.Name())
	a.markReady()
	return true
}

// transmit 发送一条出站报文
//
// 协议错误时丢弃；其他错误时带剩余有效期放回队首并断开通道，
// 已过期的报文不再放回。
func (a *Adaptor) transmit(m *iso.Message, exp time.Time) {
	err := a.channel.Send(m)
	if err == nil {
		a.transmitted.Add(1)
		return
	}

	if types.IsProtocolError(err) {
		logger.Warn("报文编码失败，丢弃", "adaptor", a.cfg.Name, "mti", m.MTI(), "error", err)
		return
	}

	a.requeue(m, exp)
	logger.Warn("发送失败，断开通道等待重连", "adaptor", a.cfg.Name, "channel", a.channel.Name(), "error", err)
	a.disconnect()
}

// requeue 按原过期时间把报文放回出站队列头部
func (a *Adaptor) requeue(m *iso.Message, exp time.Time) {
	var ttl time.Duration
	if !exp.IsZero() {
		ttl = exp.Sub(a.cfg.Clock.Now())
		if ttl <= 0 {
			a.txExpired.Add(1)
			logger.Debug("报文发送失败时已过期，丢弃", "adaptor", a.cfg.Name, "mti", m.MTI())
			return
		}
	}
	if err := a.space.Push(a.cfg.Out, m, ttl); err != nil {
		logger.Error("报文放回出站队列失败", "adaptor", a.cfg.Name, "mti", m.MTI(), "error", err)
	}
}

// ============================================================================
//                              接收循环
// ============================================================================

func (a *Adaptor) receiveLoop() {
	defer a.wg.Done()

	for a.ctx.Err() == nil {
		if !a.channel.IsConnected() {
			a.waitConnected()
			continue
		}

		m, err := a.channel.Receive()
		if err != nil {
			if a.ctx.Err() != nil {
				return
			}
			if types.IsProtocolError(err) {
				logger.Warn("入站报文解码失败，丢弃", "adaptor", a.cfg.Name, "error", err)
				continue
			}
			if types.IsEOF(err) {
				logger.Info("对端关闭连接", "adaptor", a.cfg.Name, "channel", a.channel.Name())
			} else {
				logger.Warn("接收失败，断开通道", "adaptor", a.cfg.Name, "channel", a.channel.Name(), "error", err)
			}
			a.disconnect()
			continue
		}

		a.received.Add(1)
		m.SetDirection(iso.DirectionIncoming)
		if err := a.space.Out(a.cfg.In, m, 0); err != nil {
			logger.Warn("写入入站队列失败", "adaptor", a.cfg.Name, "mti", m.MTI(), "error", err)
		}
	}
}

func (a *Adaptor) waitConnected() {
	t := a.cfg.Clock.Timer(a.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-a.connCh:
	case <-a.ctx.Done():
	case <-t.C:
	}
}

// ============================================================================
//                              内部辅助
// ============================================================================

func (a *Adaptor) disconnect() {
	if err := a.channel.Disconnect(); err != nil {
		logger.Debug("断开通道失败", "adaptor", a.cfg.Name, "error", err)
	}
	a.markNotReady()
}

// markReady 写入就绪标记，重复调用只保留一个
//
// 断开方先断开通道再取走标记，锁内复查连接状态即可避免残留。
func (a *Adaptor) markReady() {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	if a.ready || !a.channel.IsConnected() {
		return
	}
	a.space.Inp(a.cfg.Ready)
	if err := a.space.Out(a.cfg.Ready, readyMarker(), 0); err != nil {
		logger.Debug("写入就绪标记失败", "adaptor", a.cfg.Name, "error", err)
		return
	}
	a.ready = true
}

// markNotReady 取走就绪标记
func (a *Adaptor) markNotReady() {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	if a.ready {
		a.ready = false
		a.space.Inp(a.cfg.Ready)
	}
}

// readyMarker 就绪标记，用一条网络管理报文表示
func readyMarker() *iso.Message {
	return iso.New("0800").Set(70, "301")
}

func (a *Adaptor) sleep(d time.Duration) bool {
	if d <= 0 {
		return a.ctx.Err() == nil
	}
	t := a.cfg.Clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.ctx.Done():
		return false
	}
}

// signal 非阻塞唤醒
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
