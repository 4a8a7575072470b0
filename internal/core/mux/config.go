package mux

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-isomux/pkg/interfaces"
)

// Config 多路复用器配置
type Config struct {
	// Name 实例名称，用于日志、注册表和指标
	Name string

	// TraceField 关联键中序列号取自哪个字段
	// 默认值: 11
	TraceField int

	// Reconnect 断线后是否由发送循环负责重连
	// 默认值: true
	Reconnect bool

	// ReconnectDelay 两次重连之间的固定退避
	// 默认值: 5 秒
	ReconnectDelay time.Duration

	// RetryDelay 连接或发送失败后的退避
	// 默认值: 1 秒
	RetryDelay time.Duration

	// SweepInterval 终止时清理过期挂起请求的间隔
	// 默认值: 5 秒
	SweepInterval time.Duration

	// RxExpiredSweepEvery 每收到多少个过期响应清理一次挂起表
	// 默认值: 10
	RxExpiredSweepEvery int

	// TerminateGrace Stop 在上下文没有截止时间时使用的宽限期
	// 默认值: 10 秒
	TerminateGrace time.Duration

	// KeyDeriver 自定义关联键推导，nil 时使用 TraceField 构造默认推导器
	KeyDeriver interfaces.KeyDeriver

	// Clock 时间源，测试可以注入 mock
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:                "mux",
		TraceField:          DefaultTraceField,
		Reconnect:           true,
		ReconnectDelay:      5 * time.Second,
		RetryDelay:          1 * time.Second,
		SweepInterval:       5 * time.Second,
		RxExpiredSweepEvery: 10,
		TerminateGrace:      10 * time.Second,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.TraceField <= 0 {
		return fmt.Errorf("%w: trace field must be > 0, got %d", ErrInvalidConfig, c.TraceField)
	}
	if c.ReconnectDelay < 0 || c.RetryDelay <= 0 {
		return fmt.Errorf("%w: negative or zero delay", ErrInvalidConfig)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: sweep interval must be > 0", ErrInvalidConfig)
	}
	if c.RxExpiredSweepEvery <= 0 {
		return fmt.Errorf("%w: rx expired sweep period must be > 0", ErrInvalidConfig)
	}
	if c.TerminateGrace < 0 {
		return fmt.Errorf("%w: negative terminate grace", ErrInvalidConfig)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithName 设置实例名称
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithTraceField 设置序列号字段
func WithTraceField(field int) Option {
	return func(c *Config) { c.TraceField = field }
}

// WithReconnect 启用或关闭自动重连
func WithReconnect(enabled bool) Option {
	return func(c *Config) { c.Reconnect = enabled }
}

// WithReconnectDelay 设置重连退避
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) { c.ReconnectDelay = d }
}

// WithRetryDelay 设置失败退避
func WithRetryDelay(d time.Duration) Option {
	return func(c *Config) { c.RetryDelay = d }
}

// WithSweepInterval 设置终止时的清理间隔
func WithSweepInterval(d time.Duration) Option {
	return func(c *Config) { c.SweepInterval = d }
}

// WithTerminateGrace 设置 Stop 的默认宽限期
func WithTerminateGrace(d time.Duration) Option {
	return func(c *Config) { c.TerminateGrace = d }
}

// WithKeyDeriver 设置自定义关联键推导
func WithKeyDeriver(d interfaces.KeyDeriver) Option {
	return func(c *Config) { c.KeyDeriver = d }
}

// WithClock 设置时间源
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}
