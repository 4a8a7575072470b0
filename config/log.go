package config

import (
	"fmt"

	"github.com/dep2p/go-isomux/pkg/lib/log"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level debug/info/warn/error
	// 默认值: info
	Level string `json:"level"`

	// Format text 或 json
	// 默认值: text
	Format string `json:"format"`

	// FxEvents 是否输出 fx 生命周期事件
	// 默认值: false
	FxEvents bool `json:"fx_events"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}
