package config

import (
	"fmt"
	"time"
)

// 通道类型
const (
	ChannelTCP       = "tcp"
	ChannelWebSocket = "ws"
)

// ChannelConfig 通道配置
type ChannelConfig struct {
	// Kind tcp 或 ws
	// 默认值: tcp
	Kind string `json:"kind"`

	// Address 对端地址，tcp 为 host:port，ws 为 ws:// URL
	Address string `json:"address"`

	// DialTimeout 建立连接超时
	// 默认值: 10s
	DialTimeout Duration `json:"dial_timeout"`

	// MaxFrameSize 单帧最大字节数
	// 默认值: 65536
	MaxFrameSize int `json:"max_frame_size"`

	// MaxConns 服务端同时接受的最大连接数，0 不限制
	MaxConns int `json:"max_conns,omitempty"`
}

// DefaultChannelConfig 返回默认通道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Kind:         ChannelTCP,
		Address:      "127.0.0.1:8000",
		DialTimeout:  Duration(10 * time.Second),
		MaxFrameSize: 64 * 1024,
	}
}

// Validate 验证通道配置
func (c *ChannelConfig) Validate() error {
	if c.Kind != ChannelTCP && c.Kind != ChannelWebSocket {
		return fmt.Errorf("channel: unknown kind %q", c.Kind)
	}
	if c.Address == "" {
		return fmt.Errorf("channel: address cannot be empty")
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("channel: dial_timeout must be > 0")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("channel: max_frame_size must be > 0")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("channel: max_conns cannot be negative")
	}
	return nil
}
