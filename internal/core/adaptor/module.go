package adaptor

import (
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
	Space   interfaces.Space
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
	cfg.ReconnectDelay = c.Mux.ReconnectDelay.Duration()
	cfg.RetryDelay = c.Mux.RetryDelay.Duration()
	return cfg
}

// ProvideAdaptor 创建通道适配器
func ProvideAdaptor(input ModuleInput) (*Adaptor, error) {
	return NewWithConfig(input.Channel, input.Space, input.Config)
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("adaptor",
		fx.Provide(
			ConfigFromUnified,
			ProvideAdaptor,
		),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In
	LC      fx.Lifecycle
	Adaptor *Adaptor
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: input.Adaptor.Start,
		OnStop:  input.Adaptor.Stop,
	})
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "adaptor"
	Description = "元组空间队列与通道之间的适配器"
)
