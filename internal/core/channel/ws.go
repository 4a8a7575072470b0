package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

var _ interfaces.Channel = (*WSChannel)(nil)

// closeWriteWait 关闭帧的写超时
const closeWriteWait = time.Second

// ============================================================================
//                              WSChannel 实现
// ============================================================================

// WSChannel 基于 WebSocket 的报文通道，每条二进制消息承载一条报文
type WSChannel struct {
	cfg    Config
	url    string
	server bool

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	connected atomic.Bool
}

// NewWSChannel 创建客户端 WebSocket 通道，url 形如 ws://host:port/path
func NewWSChannel(url string, opts ...Option) *WSChannel {
	cfg := buildConfig(opts)
	if cfg.Name == "" {
		cfg.Name = url
	}
	return &WSChannel{cfg: cfg, url: url}
}

func newServerWSChannel(conn *websocket.Conn, cfg Config) *WSChannel {
	cfg.Name = conn.RemoteAddr().String()
	c := &WSChannel{cfg: cfg, url: cfg.Name, server: true}
	c.attach(conn)
	return c
}

// Name 通道名称
func (c *WSChannel) Name() string { return c.cfg.Name }

// Connect 完成 WebSocket 握手
func (c *WSChannel) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	if c.server {
		return types.ErrReconnectUnsupported
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return classifyDialError(c.url, err)
	}

	c.attach(conn)
	logger.Debug("WebSocket 通道已连接", "channel", c.cfg.Name)
	return nil
}

// Reconnect 断开后重新握手
func (c *WSChannel) Reconnect(ctx context.Context) error {
	if c.server {
		return types.ErrReconnectUnsupported
	}
	_ = c.Disconnect()
	return c.Connect(ctx)
}

// Disconnect 发送关闭帧后关闭连接
func (c *WSChannel) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected.Store(false)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	// WriteControl 可与 WriteMessage 并发调用
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeWriteWait))
	return conn.Close()
}

// IsConnected 是否已连接
func (c *WSChannel) IsConnected() bool {
	return c.connected.Load()
}

// Send 编码并发送一条二进制消息
func (c *WSChannel) Send(m *iso.Message) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return types.ErrNotConnected
	}

	data, err := iso.Marshal(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return classifyWSError(conn.WriteMessage(websocket.BinaryMessage, data))
}

// Receive 读取一条二进制消息并解码
func (c *WSChannel) Receive() (*iso.Message, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, types.ErrNotConnected
	}

	mt, data, err := conn.ReadMessage()
	if err != nil {
		return nil, classifyWSError(err)
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: unexpected websocket message type %d", types.ErrProtocol, mt)
	}

	m, err := iso.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	m.SetDirection(iso.DirectionIncoming)
	return m, nil
}

func (c *WSChannel) attach(conn *websocket.Conn) {
	conn.SetReadLimit(int64(c.cfg.MaxFrameSize))
	c.mu.Lock()
	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()
}

// classifyWSError 正常关闭帧视为 EOF，超限视为协议错误
func classifyWSError(err error) error {
	switch {
	case err == nil:
		return nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return io.EOF
	case errors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: %v", types.ErrProtocol, err)
	case errors.Is(err, websocket.ErrCloseSent):
		return types.ErrChannelClosed
	default:
		return classifyIOError(err)
	}
}

// ============================================================================
//                              WSHandler 实现
// ============================================================================

// WSHandler 把 HTTP 请求升级为服务端 WebSocket 通道
//
// 挂到任意 http.Server 上，通过 Accept 取得新通道。
type WSHandler struct {
	cfg      Config
	upgrader websocket.Upgrader

	accepted chan *WSChannel
	closeCh  chan struct{}
	closed   atomic.Bool

	mu    sync.Mutex
	chans []*WSChannel
}

// NewWSHandler 创建升级处理器
func NewWSHandler(opts ...Option) *WSHandler {
	cfg := buildConfig(opts)
	return &WSHandler{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.DialTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		accepted: make(chan *WSChannel),
		closeCh:  make(chan struct{}),
	}
}

// ServeHTTP 完成升级并把通道交给 Accept
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}

	ch := newServerWSChannel(conn, h.cfg)
	select {
	case h.accepted <- ch:
		h.mu.Lock()
		h.chans = append(h.chans, ch)
		h.mu.Unlock()
	case <-h.closeCh:
		_ = ch.Disconnect()
	case <-r.Context().Done():
		_ = ch.Disconnect()
	}
}

// Accept 等待下一个通道
func (h *WSHandler) Accept(ctx context.Context) (*WSChannel, error) {
	select {
	case ch := <-h.accepted:
		return ch, nil
	case <-h.closeCh:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 拒绝新的升级并关闭所有已接受的通道
func (h *WSHandler) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(h.closeCh)

	h.mu.Lock()
	chans := h.chans
	h.chans = nil
	h.mu.Unlock()

	var err error
	for _, ch := range chans {
		err = multierr.Append(err, ch.Disconnect())
	}
	return err
}
