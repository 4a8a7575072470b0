package config

import (
	"fmt"
	"time"
)

// MuxConfig 队列引擎配置
type MuxConfig struct {
	// TraceField 关联键序列号字段
	// 默认值: 11
	TraceField int `json:"trace_field"`

	// Reconnect 断线自动重连
	// 默认值: true
	Reconnect bool `json:"reconnect"`

	// ReconnectDelay 重连退避
	// 默认值: 5s
	ReconnectDelay Duration `json:"reconnect_delay"`

	// RetryDelay 失败退避
	// 默认值: 1s
	RetryDelay Duration `json:"retry_delay"`

	// SweepInterval 终止时清理过期挂起请求的间隔
	// 默认值: 5s
	SweepInterval Duration `json:"sweep_interval"`

	// RxExpiredSweepEvery 每多少个过期响应清理一次挂起表
	// 默认值: 10
	RxExpiredSweepEvery int `json:"rx_expired_sweep_every"`

	// TerminateGrace 停止时软终止阶段的宽限期
	// 默认值: 10s
	TerminateGrace Duration `json:"terminate_grace"`
}

// DefaultMuxConfig 返回默认队列引擎配置
func DefaultMuxConfig() MuxConfig {
	return MuxConfig{
		TraceField:          11,
		Reconnect:           true,
		ReconnectDelay:      Duration(5 * time.Second),
		RetryDelay:          Duration(1 * time.Second),
		SweepInterval:       Duration(5 * time.Second),
		RxExpiredSweepEvery: 10,
		TerminateGrace:      Duration(10 * time.Second),
	}
}

// Validate 验证队列引擎配置
func (c *MuxConfig) Validate() error {
	if c.TraceField <= 0 {
		return fmt.Errorf("mux: trace_field must be > 0")
	}
	if c.ReconnectDelay < 0 || c.RetryDelay <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("mux: delays must be positive")
	}
	if c.RxExpiredSweepEvery <= 0 {
		return fmt.Errorf("mux: rx_expired_sweep_every must be > 0")
	}
	if c.TerminateGrace < 0 {
		return fmt.Errorf("mux: terminate_grace cannot be negative")
	}
	return nil
}
