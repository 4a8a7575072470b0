package channel

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// logger 通道日志
var logger = log.Logger("core/channel")

var _ interfaces.Channel = (*TCPChannel)(nil)

// ============================================================================
//                              TCPChannel 实现
// ============================================================================

// TCPChannel 基于 TCP 的报文通道
type TCPChannel struct {
	cfg    Config
	addr   string
	server bool

	// mu 保护 conn 和 reader
	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader

	// writeMu 串行化写入
	writeMu sync.Mutex

	connected atomic.Bool
}

// NewTCPChannel 创建客户端 TCP 通道，需调用 Connect
func NewTCPChannel(addr string, opts ...Option) *TCPChannel {
	cfg := buildConfig(opts)
	if cfg.Name == "" {
		cfg.Name = addr
	}
	return &TCPChannel{cfg: cfg, addr: addr}
}

// newServerTCPChannel 包装已接受的连接
func newServerTCPChannel(conn net.Conn, cfg Config) *TCPChannel {
	cfg.Name = conn.RemoteAddr().String()
	c := &TCPChannel{cfg: cfg, addr: cfg.Name, server: true}
	c.attach(conn)
	return c
}

// Name 通道名称
func (c *TCPChannel) Name() string { return c.cfg.Name }

// Addr 对端地址
func (c *TCPChannel) Addr() string { return c.addr }

// Connect 拨号建立连接，已连接时不做任何事
func (c *TCPChannel) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	if c.server {
		return types.ErrReconnectUnsupported
	}

	dialer := &net.Dialer{
		Timeout:   c.cfg.DialTimeout,
		KeepAlive: c.cfg.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return classifyDialError(c.addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	c.attach(conn)
	logger.Debug("TCP 通道已连接", "channel", c.cfg.Name, "local", conn.LocalAddr().String())
	return nil
}

// Reconnect 断开后重新拨号
func (c *TCPChannel) Reconnect(ctx context.Context) error {
	if c.server {
		return types.ErrReconnectUnsupported
	}
	_ = c.Disconnect()
	return c.Connect(ctx)
}

// Disconnect 关闭连接
func (c *TCPChannel) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.reader = nil
	c.connected.Store(false)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected 是否已连接
func (c *TCPChannel) IsConnected() bool {
	return c.connected.Load()
}

// Send 编码并写入一帧
func (c *TCPChannel) Send(m *iso.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return types.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return classifyIOError(iso.WriteDelimited(conn, m))
}

// Receive 读取一帧
func (c *TCPChannel) Receive() (*iso.Message, error) {
	c.mu.Lock()
	r := c.reader
	c.mu.Unlock()
	if r == nil {
		return nil, types.ErrNotConnected
	}

	m, err := iso.ReadDelimited(r, c.cfg.MaxFrameSize)
	if err != nil {
		return nil, classifyIOError(err)
	}
	m.SetDirection(iso.DirectionIncoming)
	return m, nil
}

func (c *TCPChannel) attach(conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected.Store(true)
	c.mu.Unlock()
}
