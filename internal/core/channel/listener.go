package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"golang.org/x/net/netutil"
)

// ============================================================================
//                              Listener 实现
// ============================================================================

// Listener TCP 监听器，把接受的连接包装为已连接的通道
type Listener struct {
	cfg      Config
	listener net.Listener
	closed   atomic.Bool

	mu       sync.Mutex
	accepted []*TCPChannel
}

// Listen 在 addr 上监听
func Listen(ctx context.Context, addr string, opts ...Option) (*Listener, error) {
	cfg := buildConfig(opts)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lc := net.ListenConfig{KeepAlive: cfg.KeepAlive}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: listen %s: %w", addr, err)
	}
	if cfg.MaxConns > 0 {
		// 达到上限后 Accept 阻塞，直到有通道断开
		l = netutil.LimitListener(l, cfg.MaxConns)
	}

	logger.Info("开始监听", "addr", l.Addr().String(), "max_conns", cfg.MaxConns)
	return &Listener{cfg: cfg, listener: l}, nil
}

// Accept 等待下一个连接
func (l *Listener) Accept() (*TCPChannel, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return nil, ErrListenerClosed
		}
		return nil, err
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	ch := newServerTCPChannel(conn, l.cfg)
	l.mu.Lock()
	l.accepted = append(l.accepted, ch)
	l.mu.Unlock()

	logger.Debug("接受连接", "remote", ch.Name())
	return ch, nil
}

// Addr 实际监听地址
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close 关闭监听器和所有已接受的通道
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := l.listener.Close()

	l.mu.Lock()
	accepted := l.accepted
	l.accepted = nil
	l.mu.Unlock()

	for _, ch := range accepted {
		err = multierr.Append(err, ch.Disconnect())
	}
	return err
}
