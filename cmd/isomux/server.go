package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/internal/core/channel"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              服务端模式
// ════════════════════════════════════════════════════════════════════════════

// acceptor 按通道类型接受连接
type acceptor func(ctx context.Context) (interfaces.Channel, error)

// runServer 接受连接并应答请求，直到 ctx 结束
func runServer(ctx context.Context, cfg *config.Config) error {
	opts := []channel.Option{
		channel.WithName(cfg.Name),
		channel.WithMaxFrameSize(cfg.Channel.MaxFrameSize),
		channel.WithMaxConns(cfg.Channel.MaxConns),
	}

	var (
		accept  acceptor
		closeFn func() error
	)
	switch cfg.Channel.Kind {
	case config.ChannelWebSocket:
		u, err := url.Parse(cfg.Channel.Address)
		if err != nil {
			return fmt.Errorf("无效的 WebSocket 地址: %w", err)
		}
		h := channel.NewWSHandler(opts...)
		path := u.Path
		if path == "" {
			path = "/"
		}
		mux := http.NewServeMux()
		mux.Handle(path, h)
		ln, err := net.Listen("tcp", u.Host)
		if err != nil {
			return err
		}
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP 服务异常退出", "error", err)
			}
		}()
		accept = func(ctx context.Context) (interfaces.Channel, error) { return h.Accept(ctx) }
		closeFn = func() error {
			_ = srv.Close()
			return h.Close()
		}
		logger.Info("WebSocket 服务已启动", "addr", ln.Addr().String(), "path", path)

	default:
		l, err := channel.Listen(ctx, cfg.Channel.Address, opts...)
		if err != nil {
			return err
		}
		accept = func(context.Context) (interfaces.Channel, error) { return l.Accept() }
		closeFn = l.Close
		logger.Info("TCP 服务已启动", "addr", l.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return closeFn()
	})
	g.Go(func() error {
		for {
			ch, err := accept(gctx)
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, channel.ErrListenerClosed) {
					return nil
				}
				return err
			}
			logger.Info("接受连接", "channel", ch.Name())
			g.Go(func() error {
				serve(gctx, ch)
				return nil
			})
		}
	})

	err := g.Wait()
	logger.Info("服务已停止")
	return err
}

// serve 对一个连接上的每个请求回应成功应答
func serve(ctx context.Context, ch interfaces.Channel) {
	stop := context.AfterFunc(ctx, func() { _ = ch.Disconnect() })
	defer stop()
	defer func() { _ = ch.Disconnect() }()

	for {
		m, err := ch.Receive()
		if err != nil {
			if types.IsProtocolError(err) {
				logger.Warn("报文解码失败，丢弃", "channel", ch.Name(), "error", err)
				continue
			}
			logger.Info("连接结束", "channel", ch.Name(), "error", err)
			return
		}
		if !m.IsRequest() {
			continue
		}
		if err := ch.Send(respond(m)); err != nil {
			logger.Warn("应答发送失败", "channel", ch.Name(), "error", err)
			return
		}
	}
}

// respond 构造应答：响应 MTI，39 = "00"，保留请求中的 11 和 41
func respond(req *iso.Message) *iso.Message {
	resp := iso.New(req.MTI())
	_ = resp.SetResponseMTI()
	for _, f := range []int{iso.FieldTraceNumber, iso.FieldTerminalID} {
		if req.HasField(f) {
			resp.Set(f, req.GetString(f))
		}
	}
	return resp.Set(iso.FieldResponseCode, "00")
}
