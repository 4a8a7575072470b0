package space

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Config 内存空间配置
type Config struct {
	// GCInterval 过期条目清理周期，0 表示不启动后台清理
	// 默认值: 5 秒
	GCInterval time.Duration

	// Clock 时间源
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		GCInterval: 5 * time.Second,
	}
}

// Option 配置选项
type Option func(*Config)

// WithGCInterval 设置清理周期
func WithGCInterval(d time.Duration) Option {
	return func(c *Config) { c.GCInterval = d }
}

// WithClock 设置时间源
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}
