package config

import (
	"errors"
	"fmt"
)

// ValidateAndFix 验证配置并修复常见问题
//
// 可修复的问题：
//   - 空名称、空模式、空后端、空通道类型或地址 -> 默认值
//   - 非正的间隔与计数 -> 默认值
//   - 缺失的关联字段和 MTI 映射 -> 默认值
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if c.Name == "" {
		c.Name = "isomux"
	}
	if c.Mode == "" {
		c.Mode = ModeQueue
	}

	defMux := DefaultMuxConfig()
	if c.Mux.TraceField <= 0 {
		c.Mux.TraceField = defMux.TraceField
	}
	if c.Mux.RetryDelay <= 0 {
		c.Mux.RetryDelay = defMux.RetryDelay
	}
	if c.Mux.ReconnectDelay < 0 {
		c.Mux.ReconnectDelay = defMux.ReconnectDelay
	}
	if c.Mux.SweepInterval <= 0 {
		c.Mux.SweepInterval = defMux.SweepInterval
	}
	if c.Mux.RxExpiredSweepEvery <= 0 {
		c.Mux.RxExpiredSweepEvery = defMux.RxExpiredSweepEvery
	}
	if c.Mux.TerminateGrace < 0 {
		c.Mux.TerminateGrace = defMux.TerminateGrace
	}

	defSpace := DefaultSpaceConfig()
	if c.Space.Backend == "" {
		c.Space.Backend = defSpace.Backend
	}
	if c.Space.GCInterval <= 0 {
		c.Space.GCInterval = defSpace.GCInterval
	}
	if len(c.Space.KeyFields) == 0 {
		c.Space.KeyFields = defSpace.KeyFields
	}
	if len(c.Space.MTIMapping) != 3 {
		c.Space.MTIMapping = defSpace.MTIMapping
	}

	defChannel := DefaultChannelConfig()
	if c.Channel.Kind == "" {
		c.Channel.Kind = defChannel.Kind
	}
	if c.Channel.Address == "" {
		c.Channel.Address = defChannel.Address
	}
	if c.Channel.DialTimeout <= 0 {
		c.Channel.DialTimeout = defChannel.DialTimeout
	}
	if c.Channel.MaxFrameSize <= 0 {
		c.Channel.MaxFrameSize = defChannel.MaxFrameSize
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证失败时 panic，仅用于初始化和测试
func MustValidate(c *Config) {
	if c == nil {
		panic(errors.New("config is nil"))
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
}
