package isomux

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/internal/core/adaptor"
	"github.com/dep2p/go-isomux/internal/core/channel"
	"github.com/dep2p/go-isomux/internal/core/metrics"
	"github.com/dep2p/go-isomux/internal/core/mux"
	"github.com/dep2p/go-isomux/internal/core/registry"
	"github.com/dep2p/go-isomux/internal/core/space"
	"github.com/dep2p/go-isomux/internal/core/spacemux"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/lib/log"
)

var fxLogger = log.Logger("isomux/fx")

// switchDeps Switch 从容器中取出的组件
type switchDeps struct {
	fx.In

	Multiplexer interfaces.Multiplexer `name:"multiplexer"`
	Registry    interfaces.Registry
	Channel     interfaces.Channel `name:"channel"`
}

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Registry
//  2. Channel（配置创建或外部提供）
//  3. 引擎：queue 加载 Mux；space 加载 Space → Adaptor → SpaceMux
//  4. Metrics（条件加载）
//  5. 用户扩展
func buildFxApp(o *options, s *Switch) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	cfg := o.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		registry.Module(),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 通道
	// ════════════════════════════════════════════════════════════════════════
	if o.channel != nil {
		ch := o.channel
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func() interfaces.Channel { return ch },
				fx.ResultTags(`name:"channel"`),
			),
		))
	} else {
		modules = append(modules, channel.Module())
	}

	if o.listener != nil {
		l := o.listener
		modules = append(modules, fx.Provide(func() interfaces.RequestListener { return l }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 引擎
	// ════════════════════════════════════════════════════════════════════════
	switch cfg.Mode {
	case config.ModeSpace:
		modules = append(modules,
			space.Module(),    // 元组空间
			adaptor.Module(),  // 通道 ⇄ 空间队列
			spacemux.Module(), // 空间多路复用器
		)
	default:
		modules = append(modules, mux.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 指标（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Metrics.Enable {
		modules = append(modules, metrics.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 用户扩展
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	modules = append(modules,
		fx.Invoke(func(d switchDeps) {
			s.mux = d.Multiplexer
			s.registry = d.Registry
			s.channel = d.Channel
		}),
		fx.WithLogger(newFxEventLogger(cfg.Log.FxEvents)),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, err
	}
	fxLogger.Debug("Fx 应用已构建", "mode", cfg.Mode, "name", cfg.Name)
	return app, nil
}

// newFxEventLogger fx 事件日志构造器，未启用时丢弃
func newFxEventLogger(enabled bool) func() fxevent.Logger {
	return func() fxevent.Logger {
		if !enabled {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return fxevent.NopLogger
		}
		return &fxevent.ZapLogger{Logger: l}
	}
}
