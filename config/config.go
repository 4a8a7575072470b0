// Package config 提供 isomux 的统一配置
//
// 主 Config 嵌入各组件子配置，每个子配置在独立文件中定义，
// 支持 JSON 加载与保存：
//
//	cfg := config.NewConfig()
//	cfg.Channel.Address = "10.0.0.8:8000"
//	cfg.Mux.TraceField = 11
//
//	// 从文件加载
//	cfg, err := config.LoadFile("isomux.json")
//
// 组件包通过 ConfigFromUnified 把这里的字段转换为自身的 Config。
package config

import "fmt"

// 多路复用器实现
const (
	// ModeQueue 基于发送队列和挂起表的引擎
	ModeQueue = "queue"
	// ModeSpace 基于元组空间的变体
	ModeSpace = "space"
)

// Config isomux 完整配置
type Config struct {
	// Name 多路复用器逻辑名称，注册表按此查找
	Name string `json:"name"`

	// Mode 实现方式：queue 或 space
	Mode string `json:"mode"`

	// Mux 队列引擎配置
	Mux MuxConfig `json:"mux"`

	// Space 元组空间配置
	Space SpaceConfig `json:"space"`

	// Channel 通道配置
	Channel ChannelConfig `json:"channel"`

	// Metrics 指标导出配置
	Metrics MetricsConfig `json:"metrics"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Name:    "isomux",
		Mode:    ModeQueue,
		Mux:     DefaultMuxConfig(),
		Space:   DefaultSpaceConfig(),
		Channel: DefaultChannelConfig(),
		Metrics: DefaultMetricsConfig(),
		Log:     DefaultLogConfig(),
	}
}

// Validate 验证所有子配置
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: name cannot be empty")
	}
	if c.Mode != ModeQueue && c.Mode != ModeSpace {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if err := c.Mux.Validate(); err != nil {
		return err
	}
	if err := c.Space.Validate(); err != nil {
		return err
	}
	if err := c.Channel.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
