package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ErrReporterStarted Reporter 已启动
var ErrReporterStarted = errors.New("metrics: reporter already started")

// Reporter 通过 HTTP 暴露 Prometheus 指标
type Reporter struct {
	addr     string
	path     string
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// NewReporter 创建 Reporter
func NewReporter(addr, path string, g prometheus.Gatherer) *Reporter {
	if path == "" {
		path = "/metrics"
	}
	return &Reporter{addr: addr, path: path, gatherer: g}
}

// Handler 返回指标 HTTP 处理器
//
// 单个收集器出错时仍输出其余指标。
func (r *Reporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{
		ErrorLog:      r,
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Println 实现 promhttp.Logger
func (r *Reporter) Println(v ...interface{}) {
	logger.Error("指标输出失败", "error", v)
}

// Start 开始监听
func (r *Reporter) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server != nil {
		return ErrReporterStarted
	}

	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(r.path, r.Handler())
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.listener = ln
	r.done = make(chan struct{})

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("指标服务异常退出", "addr", ln.Addr().String(), "error", err)
		}
	}(r.server, r.done)

	logger.Info("指标服务已启动", "addr", ln.Addr().String(), "path", r.path)
	return nil
}

// Addr 实际监听地址，未启动时为空
func (r *Reporter) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Stop 关闭 HTTP 服务
func (r *Reporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	srv, done := r.server, r.done
	r.server, r.listener = nil, nil
	r.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	<-done
	logger.Info("指标服务已停止")
	return err
}
