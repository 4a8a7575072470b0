package metrics

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-isomux/config"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("metrics: invalid config")

// Config 指标配置
type Config struct {
	// Enabled 是否注册收集器
	Enabled bool

	// Namespace 指标名前缀
	Namespace string

	// ListenAddr 为空时不启动 HTTP 服务
	ListenAddr string

	// Path HTTP 路径
	Path string

	// Clock 速率窗口使用的时钟，测试可注入模拟时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "isomux",
		Path:      "/metrics",
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled:    cfg.Metrics.Enable,
		Namespace:  cfg.Metrics.Namespace,
		ListenAddr: cfg.Metrics.ListenAddr,
		Path:       cfg.Metrics.Path,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Namespace == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidConfig)
	}
	if c.ListenAddr != "" && (c.Path == "" || c.Path[0] != '/') {
		return fmt.Errorf("%w: path %q", ErrInvalidConfig, c.Path)
	}
	return nil
}
