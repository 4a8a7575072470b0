package spacemux

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

	Config Config
	Space  interfaces.Space

	// Listener 未匹配报文接收者（可选）
	Listener interfaces.RequestListener `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	SpaceMux    *SpaceMux
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
	cfg.In = c.Space.In
	cfg.Out = c.Space.Out
	cfg.Unhandled = c.Space.Unhandled
	cfg.UnhandledTTL = c.Space.UnhandledTTL.Duration()
	cfg.NearMissWait = c.Space.NearMissWait.Duration()
	if len(c.Space.KeyFields) > 0 {
		cfg.KeyFields = append([]int(nil), c.Space.KeyFields...)
	}
	if len(c.Space.MTIMapping) == len(cfg.MTIMapping) {
		copy(cfg.MTIMapping[:], c.Space.MTIMapping)
	}
	return cfg
}

// ProvideSpaceMux 创建空间多路复用器
func ProvideSpaceMux(input ModuleInput) (ModuleOutput, error) {
	m, err := NewWithConfig(input.Space, input.Config)
	if err != nil {
		return ModuleOutput{}, err
	}
	if input.Listener != nil {
		m.SetRequestListener(input.Listener)
	}
	return ModuleOutput{SpaceMux: m, Multiplexer: m}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("spacemux",
		fx.Provide(
			ConfigFromUnified,
			ProvideSpaceMux,
		),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC       fx.Lifecycle
	SpaceMux *SpaceMux
	Registry interfaces.Registry `optional:"true"`
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	m := input.SpaceMux
	input.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if input.Registry != nil {
				return input.Registry.Register(m.Name(), m)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if input.Registry != nil {
				if err := input.Registry.Unregister(m.Name()); err != nil {
					logger.Debug("注销多路复用器失败", "mux", m.Name(), "error", err)
				}
			}
			return m.Stop(ctx)
		},
	})
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "spacemux"
	Description = "基于元组空间的 ISO-8583 多路复用器"
)
