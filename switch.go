package isomux

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

var logger = log.Logger("isomux")

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// closeTimeout Close 使用的停止超时
	closeTimeout = 30 * time.Second
)

var _ interfaces.Multiplexer = (*Switch)(nil)

// Switch 按配置装配的多路复用器实例
//
// Switch 自身实现 interfaces.Multiplexer，调用转发给配置选定的引擎。
// 同一进程中的其他多路复用器可以登记到 Registry()，Stop 时一并终止。
type Switch struct {
	cfg *config.Config
	app *fx.App

	// 由 fx 注入
	mux      interfaces.Multiplexer
	registry interfaces.Registry
	channel  interfaces.Channel

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建 Switch，不启动
func New(_ context.Context, opts ...Option) (*Switch, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	s := &Switch{cfg: o.config}
	app, err := buildFxApp(o, s)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	s.app = app
	return s, nil
}

// Start 快捷启动函数，等价于 New() + Start()
func Start(ctx context.Context, opts ...Option) (*Switch, error) {
	s, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("start switch: %w", err)
	}
	return s, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动所有组件
func (s *Switch) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := s.app.Start(startCtx); err != nil {
		logger.Error("启动失败", "name", s.cfg.Name, "error", err)
		return err
	}
	s.started = true
	logger.Info("已启动", "name", s.cfg.Name, "mode", s.cfg.Mode, "channel", s.channel.Name())
	return nil
}

// Stop 停止
//
// 先并行终止注册表中的所有多路复用器，让它们在同一个宽限期内排空，
// 再按依赖逆序停止各组件。ctx 截止时间作为宽限期。
func (s *Switch) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	s.started = false
	s.closed = true

	logger.Info("正在停止", "name", s.cfg.Name)

	var err error
	if terr := s.terminateAll(ctx); terr != nil {
		err = multierr.Append(err, terr)
	}
	if serr := s.app.Stop(ctx); serr != nil {
		err = multierr.Append(err, serr)
	}

	if err != nil {
		logger.Warn("停止时出现错误", "name", s.cfg.Name, "error", err)
	} else {
		logger.Info("已停止", "name", s.cfg.Name)
	}
	return err
}

// terminateAll 并行终止注册表中的多路复用器
func (s *Switch) terminateAll(ctx context.Context) error {
	type stopper interface {
		Stop(ctx context.Context) error
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.registry.Names() {
		m, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		g.Go(func() error {
			if st, ok := m.(stopper); ok {
				return st.Stop(gctx)
			}
			return m.Terminate(s.cfg.Mux.TerminateGrace.Duration())
		})
	}
	return g.Wait()
}

// Close 使用默认超时停止，未启动时直接标记关闭
func (s *Switch) Close() error {
	s.mu.Lock()
	started := s.started
	if !started {
		s.closed = true
	}
	s.mu.Unlock()

	if !started {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.Stop(ctx)
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件访问
// ════════════════════════════════════════════════════════════════════════════

// Name 逻辑名称
func (s *Switch) Name() string {
	return s.cfg.Name
}

// Mode 当前实现
func (s *Switch) Mode() string {
	return s.cfg.Mode
}

// Config 配置副本
func (s *Switch) Config() *config.Config {
	return s.cfg.Clone()
}

// Registry 名称注册表
func (s *Switch) Registry() interfaces.Registry {
	return s.registry
}

// Channel 底层通道
func (s *Switch) Channel() interfaces.Channel {
	return s.channel
}

// Multiplexer 配置选定的引擎
func (s *Switch) Multiplexer() interfaces.Multiplexer {
	return s.mux
}

// Mux 按名称查找多路复用器
func (s *Switch) Mux(name string) (interfaces.Multiplexer, error) {
	return s.registry.Lookup(name)
}

// ════════════════════════════════════════════════════════════════════════════
//                              interfaces.Multiplexer
// ════════════════════════════════════════════════════════════════════════════

// Request 发送请求并等待响应，超时返回 (nil, nil)
func (s *Switch) Request(ctx context.Context, m *iso.Message, timeout time.Duration) (*iso.Message, error) {
	return s.mux.Request(ctx, m, timeout)
}

// Send 提交不需要响应的报文
func (s *Switch) Send(m *iso.Message) error {
	return s.mux.Send(m)
}

// Enqueue 提交挂起请求句柄
func (s *Switch) Enqueue(r interfaces.PendingRequest) error {
	return s.mux.Enqueue(r)
}

// IsConnected 通道是否可用
func (s *Switch) IsConnected() bool {
	return s.mux.IsConnected()
}

// Terminate 终止引擎
func (s *Switch) Terminate(grace time.Duration) error {
	return s.mux.Terminate(grace)
}

// Counters 计数器快照
func (s *Switch) Counters() types.Counters {
	return s.mux.Counters()
}

// ResetCounters 清零单调计数器
func (s *Switch) ResetCounters() {
	s.mux.ResetCounters()
}

// SetRequestListener 设置未匹配报文接收者
func (s *Switch) SetRequestListener(l interfaces.RequestListener) {
	s.mux.SetRequestListener(l)
}
