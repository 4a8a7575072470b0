package adaptor

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("adaptor: invalid config")

// 队列名后缀
const (
	SuffixIn    = ".in"
	SuffixOut   = ".out"
	SuffixReady = ".ready"
)

// Config 通道适配器配置
type Config struct {
	// Name 实例名称，队列名默认由它派生
	Name string

	// In 入站队列，默认 "<name>.in"
	In string

	// Out 出站队列，默认 "<name>.out"
	Out string

	// Ready 就绪标记键，默认 "<name>.ready"
	Ready string

	// ReconnectDelay 两次重连之间的固定退避
	// 默认值: 5 秒
	ReconnectDelay time.Duration

	// RetryDelay 连接失败后的退避，也是发送循环检查连接状态的周期
	// 默认值: 1 秒
	RetryDelay time.Duration

	// Clock 时间源
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:           "adaptor",
		ReconnectDelay: 5 * time.Second,
		RetryDelay:     time.Second,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Name == "" && (c.In == "" || c.Out == "" || c.Ready == "") {
		return ErrInvalidConfig
	}
	if c.ReconnectDelay < 0 || c.RetryDelay <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// withDefaults 补全派生的队列名
func (c Config) withDefaults() Config {
	if c.In == "" {
		c.In = c.Name + SuffixIn
	}
	if c.Out == "" {
		c.Out = c.Name + SuffixOut
	}
	if c.Ready == "" {
		c.Ready = c.Name + SuffixReady
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Option 配置选项
type Option func(*Config)

// WithName 设置实例名称
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithQueues 设置入站、出站队列和就绪标记键
func WithQueues(in, out, ready string) Option {
	return func(c *Config) {
		c.In = in
		c.Out = out
		c.Ready = ready
	}
}

// WithReconnectDelay 设置重连退避
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.ReconnectDelay = d }
}

// WithRetryDelay 设置失败退避
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithClock 设置时间源
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}
