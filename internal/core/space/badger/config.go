package badger

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("space/badger: invalid config")

// Config badger 空间配置
type Config struct {
	// Path 数据库目录
	Path string

	// SyncWrites 每次写入是否同步落盘
	// 默认值: false
	SyncWrites bool

	// GCInterval 过期条目清理周期，0 关闭
	// 默认值: 5 秒
	GCInterval time.Duration

	// ValueLogGCInterval 值日志回收周期，0 关闭
	// 默认值: 10 分钟
	ValueLogGCInterval time.Duration

	// GCDiscardRatio 值日志回收阈值
	// 默认值: 0.5
	GCDiscardRatio float64

	// Clock 时间源
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) Config {
	return Config{
		Path:               path,
		GCInterval:         5 * time.Second,
		ValueLogGCInterval: 10 * time.Minute,
		GCDiscardRatio:     0.5,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Path == "" {
		return ErrInvalidConfig
	}
	if c.GCInterval < 0 || c.ValueLogGCInterval < 0 {
		return ErrInvalidConfig
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return ErrInvalidConfig
	}
	return nil
}
