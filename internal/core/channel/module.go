package channel

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// ============================================================================
//                              模块输入输出
// ============================================================================

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Channel interfaces.Channel `name:"channel"`
}

// ============================================================================
//                              服务提供
// ============================================================================

// FromConfig 按配置创建客户端通道
func FromConfig(name string, c config.ChannelConfig) (interfaces.Channel, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := []Option{
		WithName(name),
		WithDialTimeout(c.DialTimeout.Duration()),
		WithMaxFrameSize(c.MaxFrameSize),
	}
	switch c.Kind {
	case config.ChannelWebSocket:
		return NewWSChannel(c.Address, opts...), nil
	default:
		return NewTCPChannel(c.Address, opts...), nil
	}
}

// ProvideChannel 创建客户端通道
func ProvideChannel(input ModuleInput) (ModuleOutput, error) {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}
	ch, err := FromConfig(cfg.Name, cfg.Channel)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Channel: ch}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块
//
// 通道的连接由多路复用器或适配器负责，本模块不注册生命周期。
func Module() fx.Option {
	return fx.Module("channel",
		fx.Provide(ProvideChannel),
	)
}

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "channel"
	Description = "TCP 与 WebSocket 报文通道"
)
