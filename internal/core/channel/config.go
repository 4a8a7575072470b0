package channel

import "time"

// Config 通道配置
type Config struct {
	// Name 通道名称，默认为对端地址
	Name string

	// DialTimeout 建立连接超时
	// 默认值: 10 秒
	DialTimeout time.Duration

	// KeepAlive TCP keepalive 周期，0 使用系统默认
	// 默认值: 30 秒
	KeepAlive time.Duration

	// MaxFrameSize 单帧最大字节数
	// 默认值: 65536
	MaxFrameSize int

	// MaxConns Listener 同时持有的最大连接数，0 不限制
	MaxConns int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		KeepAlive:    30 * time.Second,
		MaxFrameSize: 64 * 1024,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.DialTimeout <= 0 || c.KeepAlive < 0 || c.MaxFrameSize <= 0 || c.MaxConns < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithName 设置通道名称
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithDialTimeout 设置拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.DialTimeout = d }
}

// WithKeepAlive 设置 keepalive 周期
func WithKeepAlive(d time.Duration) Option {
	return func(c *Config) { c.KeepAlive = d }
}

// WithMaxFrameSize 设置最大帧
func WithMaxFrameSize(n int) Option {
	return func(c *Config) { c.MaxFrameSize = n }
}

// WithMaxConns 限制 Listener 同时持有的连接数
func WithMaxConns(n int) Option {
	return func(c *Config) { c.MaxConns = n }
}

func buildConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
