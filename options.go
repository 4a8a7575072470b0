package isomux

import (
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置，选项直接修改其字段
	config *config.Config

	// channel 外部提供的通道，非 nil 时不按配置创建
	channel interfaces.Channel

	// listener 未匹配报文接收者
	listener interfaces.RequestListener

	// userFxOptions 用户扩展
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{config: config.NewConfig()}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置来源
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置
//
// 应放在其他选项之前，之后的选项在它的基础上修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidOption)
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              基本选项
// ════════════════════════════════════════════════════════════════════════════

// WithName 设置多路复用器逻辑名称
func WithName(name string) Option {
	return func(o *options) error {
		if name == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidOption)
		}
		o.config.Name = name
		return nil
	}
}

// WithMode 选择实现：config.ModeQueue 或 config.ModeSpace
func WithMode(mode string) Option {
	return func(o *options) error {
		if mode != config.ModeQueue && mode != config.ModeSpace {
			return fmt.Errorf("%w: mode %q", ErrInvalidOption, mode)
		}
		o.config.Mode = mode
		return nil
	}
}

// WithChannel 设置通道类型和对端地址
func WithChannel(kind, address string) Option {
	return func(o *options) error {
		o.config.Channel.Kind = kind
		o.config.Channel.Address = address
		return nil
	}
}

// WithChannelInstance 使用已创建的通道
//
// 服务端接受的连接或测试用内存通道通过这里接入。
func WithChannelInstance(ch interfaces.Channel) Option {
	return func(o *options) error {
		if ch == nil {
			return fmt.Errorf("%w: nil channel", ErrInvalidOption)
		}
		o.channel = ch
		return nil
	}
}

// WithRequestListener 设置未匹配报文接收者
func WithRequestListener(l interfaces.RequestListener) Option {
	return func(o *options) error {
		o.listener = l
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              引擎选项
// ════════════════════════════════════════════════════════════════════════════

// WithTraceField 设置队列引擎的跟踪字段
func WithTraceField(field int) Option {
	return func(o *options) error {
		if field <= 0 {
			return fmt.Errorf("%w: trace field %d", ErrInvalidOption, field)
		}
		o.config.Mux.TraceField = field
		return nil
	}
}

// WithReconnect 设置断线重连及退避
func WithReconnect(enable bool, delay time.Duration) Option {
	return func(o *options) error {
		o.config.Mux.Reconnect = enable
		if delay > 0 {
			o.config.Mux.ReconnectDelay = config.Duration(delay)
		}
		return nil
	}
}

// WithTerminateGrace 设置停止时的宽限期
func WithTerminateGrace(d time.Duration) Option {
	return func(o *options) error {
		o.config.Mux.TerminateGrace = config.Duration(d)
		return nil
	}
}

// WithSpaceBackend 选择元组空间后端，badger 后端需要数据目录
func WithSpaceBackend(backend, dataDir string) Option {
	return func(o *options) error {
		o.config.Space.Backend = backend
		if dataDir != "" {
			o.config.Space.DataDir = dataDir
		}
		return nil
	}
}

// WithKeyFields 设置元组空间变体的关联字段
func WithKeyFields(fields ...int) Option {
	return func(o *options) error {
		if len(fields) == 0 {
			return fmt.Errorf("%w: empty key fields", ErrInvalidOption)
		}
		o.config.Space.KeyFields = append([]int(nil), fields...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              可观测性
// ════════════════════════════════════════════════════════════════════════════

// WithMetrics 启用指标导出，addr 非空时启动 /metrics HTTP 服务
func WithMetrics(enable bool, addr string) Option {
	return func(o *options) error {
		o.config.Metrics.Enable = enable
		o.config.Metrics.ListenAddr = addr
		return nil
	}
}

// WithFxEvents 输出 fx 生命周期事件
func WithFxEvents(enable bool) Option {
	return func(o *options) error {
		o.config.Log.FxEvents = enable
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              扩展
// ════════════════════════════════════════════════════════════════════════════

// WithFxOptions 追加 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
