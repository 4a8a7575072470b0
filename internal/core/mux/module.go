package mux

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// ============================================================================
//                              模块输入输出
// ============================================================================

// configInput 统一配置（可选）
type configInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config  Config
	Channel interfaces.Channel `name:"channel"`

	// Listener 未匹配报文接收者（可选）
	Listener interfaces.RequestListener `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Mux         *Mux
	Multiplexer interfaces.Multiplexer `name:"multiplexer"`
}

// ============================================================================
//                              服务提供
// ============================================================================

// ConfigFromUnified 从统一配置转换
func ConfigFromUnified(in configInput) Config {
	cfg := DefaultConfig()
	if in.Config == nil {
		return cfg
	}
	c := in.Config
	cfg.Name = c.Name
	cfg.TraceField = c.Mux.TraceField
	cfg.Reconnect = c.Mux.Reconnect
	cfg.ReconnectDelay = c.Mux.ReconnectDelay.Duration()
	cfg.RetryDelay = c.Mux.RetryDelay.Duration()
	cfg.SweepInterval = c.Mux.SweepInterval.Duration()
	cfg.RxExpiredSweepEvery = c.Mux.RxExpiredSweepEvery
	cfg.TerminateGrace = c.Mux.TerminateGrace.Duration()
	return cfg
}

// ProvideMux 创建多路复用器
func ProvideMux(input ModuleInput) (ModuleOutput, error) {
	m, err := NewWithConfig(input.Channel, input.Config)
	if err != nil {
		return ModuleOutput{}, err
	}
	if input.Listener != nil {
		m.SetRequestListener(input.Listener)
	}
	return ModuleOutput{Mux: m, Multiplexer: m}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("mux",
		fx.Provide(
			ConfigFromUnified,
			ProvideMux,
		),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC       fx.Lifecycle
	Mux      *Mux
	Registry interfaces.Registry `optional:"true"`
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if input.Registry != nil {
				if err := input.Registry.Register(input.Mux.Name(), input.Mux); err != nil {
					return err
				}
			}
			return input.Mux.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if input.Registry != nil {
				if err := input.Registry.Unregister(input.Mux.Name()); err != nil {
					logger.Debug("注销多路复用器失败", "mux", input.Mux.Name(), "error", err)
				}
			}
			return input.Mux.Stop(ctx)
		},
	})
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "mux"
	Description = "基于发送队列和挂起表的 ISO-8583 多路复用器"
)
