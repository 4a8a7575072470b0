package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// 元组空间后端
const (
	SpaceMemory = "memory"
	SpaceBadger = "badger"
)

// SpaceConfig 元组空间及空间多路复用器配置
type SpaceConfig struct {
	// Backend memory 或 badger
	// 默认值: memory
	Backend string `json:"backend"`

	// DataDir badger 后端的数据目录
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// GCInterval 过期条目清理间隔
	// 默认值: 5s
	GCInterval Duration `json:"gc_interval"`

	// ValueLogGCInterval badger 值日志回收间隔，0 关闭
	// 默认值: 10m
	ValueLogGCInterval Duration `json:"value_log_gc_interval"`

	// NearMissWait 请求超时瞬间响应到达时的额外等待
	// 默认值: 10s
	NearMissWait Duration `json:"near_miss_wait"`

	// KeyFields 关联字段
	// 默认值: [41, 11]
	KeyFields []int `json:"key_fields"`

	// MTIMapping MTI 逐位映射，长度必须为 3
	// 默认值: ["0123456789", "0123456789", "0022446789"]
	MTIMapping []string `json:"mti_mapping"`

	// In 入站队列名，默认 "<name>.in"
	In string `json:"in,omitempty"`

	// Out 出站队列名，默认 "<name>.out"
	Out string `json:"out,omitempty"`

	// Unhandled 未匹配报文队列名，为空时不保存
	Unhandled string `json:"unhandled,omitempty"`

	// UnhandledTTL 未匹配报文保留时间
	// 默认值: 2m
	UnhandledTTL Duration `json:"unhandled_ttl"`
}

// DefaultSpaceConfig 返回默认元组空间配置
func DefaultSpaceConfig() SpaceConfig {
	return SpaceConfig{
		Backend:            SpaceMemory,
		DataDir:            "./data",
		GCInterval:         Duration(5 * time.Second),
		ValueLogGCInterval: Duration(10 * time.Minute),
		NearMissWait:       Duration(10 * time.Second),
		KeyFields:          []int{41, 11},
		MTIMapping:         []string{"0123456789", "0123456789", "0022446789"},
		UnhandledTTL:       Duration(2 * time.Minute),
	}
}

// Validate 验证元组空间配置
func (c *SpaceConfig) Validate() error {
	switch c.Backend {
	case SpaceMemory:
	case SpaceBadger:
		if c.DataDir == "" {
			return fmt.Errorf("space: data_dir cannot be empty for badger backend")
		}
	default:
		return fmt.Errorf("space: unknown backend %q", c.Backend)
	}
	if c.GCInterval <= 0 {
		return fmt.Errorf("space: gc_interval must be > 0")
	}
	if c.NearMissWait < 0 || c.ValueLogGCInterval < 0 || c.UnhandledTTL < 0 {
		return fmt.Errorf("space: durations cannot be negative")
	}
	if len(c.KeyFields) == 0 {
		return fmt.Errorf("space: key_fields cannot be empty")
	}
	if len(c.MTIMapping) != 3 {
		return fmt.Errorf("space: mti_mapping must have 3 entries")
	}
	for i, s := range c.MTIMapping {
		if len(s) != 10 {
			return fmt.Errorf("space: mti_mapping[%d] must have 10 digits", i)
		}
	}
	return nil
}

// DBPath badger 数据库路径
func (c *SpaceConfig) DBPath() string {
	return filepath.Join(c.DataDir, "space.db")
}
