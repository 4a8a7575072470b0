package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-isomux"
	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/iso"
)

// ════════════════════════════════════════════════════════════════════════════
//                              客户端模式
// ════════════════════════════════════════════════════════════════════════════

// connectWait 等待通道可用的最长时间
const connectWait = 30 * time.Second

// loadResult 压测结果
type loadResult struct {
	ok       atomic.Int64
	declined atomic.Int64
	timeouts atomic.Int64
}

// runClient 构建 Switch 并发起 count 个请求
func runClient(ctx context.Context, cfg *config.Config) error {
	sw, err := isomux.Start(ctx, isomux.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Mux.TerminateGrace.Duration()+time.Second)
		defer cancel()
		if err := sw.Stop(stopCtx); err != nil {
			logger.Warn("停止失败", "error", err)
		}
	}()

	if err := waitConnected(ctx, sw); err != nil {
		return err
	}

	start := time.Now()
	res, err := generateLoad(ctx, sw, *count, *concurrency, *timeout)
	elapsed := time.Since(start)

	fmt.Printf("请求 %d，成功 %d，拒绝 %d，超时 %d，耗时 %s\n",
		*count, res.ok.Load(), res.declined.Load(), res.timeouts.Load(), elapsed.Round(time.Millisecond))
	fmt.Printf("计数器: %s\n", sw.Counters())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// waitConnected 等待底层通道可用
func waitConnected(ctx context.Context, sw *isomux.Switch) error {
	ctx, cancel := context.WithTimeout(ctx, connectWait)
	defer cancel()

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !sw.IsConnected() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("等待连接: %w", ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

// generateLoad 以 concurrency 路并发发送 n 个授权请求
func generateLoad(ctx context.Context, sw *isomux.Switch, n, concurrency int, timeout time.Duration) (*loadResult, error) {
	res := &loadResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		req := newRequest(i)
		g.Go(func() error {
			resp, err := sw.Request(gctx, req, timeout)
			switch {
			case err != nil:
				return err
			case resp == nil:
				res.timeouts.Add(1)
			case resp.GetString(iso.FieldResponseCode) == "00":
				res.ok.Add(1)
			default:
				res.declined.Add(1)
			}
			return nil
		})
	}
	return res, g.Wait()
}

// newRequest 第 i 个授权请求，11 取 i+1 的低 6 位
func newRequest(i int) *iso.Message {
	return iso.New("0200").
		Set(iso.FieldProcessing, "000000").
		Set(iso.FieldAmount, "000000001000").
		Set(iso.FieldTraceNumber, fmt.Sprintf("%06d", (i+1)%1000000)).
		Set(iso.FieldTerminalID, "29110001")
}
