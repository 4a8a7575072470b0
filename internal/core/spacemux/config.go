package spacemux

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("spacemux: invalid config")

// DefaultMTIMapping 默认 MTI 映射，请求和响应 MTI 映射到同一前缀
var DefaultMTIMapping = [3]string{"0123456789", "0123456789", "0022446789"}

// defaultResponseTTL 关闭 NearMissWait 时响应条目的保留时间
const defaultResponseTTL = 10 * time.Second

// DefaultKeyFields 默认关联字段
var DefaultKeyFields = []int{41, 11}

// Config 空间多路复用器配置
type Config struct {
	// Name 实例名称，队列名默认由它派生
	Name string

	// In 入站队列，默认 "<name>.in"
	In string

	// Out 出站队列，默认 "<name>.out"
	Out string

	// Ready 就绪标记键，默认 "<name>.ready"
	Ready string

	// Unhandled 未匹配报文队列，为空时不保存
	Unhandled string

	// UnhandledTTL 未匹配报文保留时间
	// 默认值: 2 分钟
	UnhandledTTL time.Duration

	// KeyFields 关联字段
	// 默认值: [41, 11]
	KeyFields []int

	// MTIMapping MTI 前三位的逐位映射
	MTIMapping [3]string

	// NearMissWait 超时瞬间响应已到达时的额外等待，0 关闭
	// 默认值: 10 秒
	NearMissWait time.Duration

	// Clock 时间源
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:         "spacemux",
		UnhandledTTL: 2 * time.Minute,
		KeyFields:    append([]int(nil), DefaultKeyFields...),
		MTIMapping:   DefaultMTIMapping,
		NearMissWait: 10 * time.Second,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Name == "" && (c.In == "" || c.Out == "") {
		return fmt.Errorf("%w: name or queues required", ErrInvalidConfig)
	}
	if len(c.KeyFields) == 0 {
		return fmt.Errorf("%w: key fields cannot be empty", ErrInvalidConfig)
	}
	for _, f := range c.KeyFields {
		if f <= 0 {
			return fmt.Errorf("%w: invalid key field %d", ErrInvalidConfig, f)
		}
	}
	for i, m := range c.MTIMapping {
		if len(m) != 10 {
			return fmt.Errorf("%w: mti mapping %d must have 10 digits", ErrInvalidConfig, i)
		}
	}
	if c.NearMissWait < 0 || c.UnhandledTTL < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidConfig)
	}
	return nil
}

// responseTTL 响应条目的保留时间，请求方放弃等待后条目随之过期
func (c Config) responseTTL() time.Duration {
	if c.NearMissWait > 0 {
		return c.NearMissWait
	}
	return defaultResponseTTL
}

func (c Config) withDefaults() Config {
	if c.In == "" {
		c.In = c.Name + ".in"
	}
	if c.Out == "" {
		c.Out = c.Name + ".out"
	}
	if c.Ready == "" {
		c.Ready = c.Name + ".ready"
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

// WithUnhandled 设置未匹配报文队列
func WithUnhandled(queue string, ttl time.Duration) Option {
	return func(c *Config) {
		c.Unhandled = queue
		c.UnhandledTTL = ttl
	}
}

// WithKeyFields 设置关联字段
func WithKeyFields(fields ...int) Option {
	return func(c *Config) { c.KeyFields = fields }
}

// WithMTIMapping 设置 MTI 映射
func WithMTIMapping(m [3]string) Option {
	return func(c *Config) { c.MTIMapping = m }
}

// WithNearMissWait 设置额外等待
func WithNearMissWait(d time.Duration) Option {
	return func(c *Config) { c.NearMissWait = d }
}

// WithClock 设置时间源
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}
