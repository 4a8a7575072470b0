package config

import "fmt"

// MetricsConfig 指标导出配置
type MetricsConfig struct {
	// Enable 是否注册 Prometheus 收集器
	// 默认值: true
	Enable bool `json:"enable"`

	// Namespace 指标名前缀
	// 默认值: "isomux"
	Namespace string `json:"namespace"`

	// ListenAddr /metrics 监听地址，为空时不启动 HTTP 服务
	ListenAddr string `json:"listen_addr,omitempty"`

	// Path HTTP 路径
	// 默认值: "/metrics"
	Path string `json:"path"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enable:    true,
		Namespace: "isomux",
		Path:      "/metrics",
	}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.Namespace == "" {
		return fmt.Errorf("metrics: namespace cannot be empty")
	}
	if c.ListenAddr != "" && (c.Path == "" || c.Path[0] != '/') {
		return fmt.Errorf("metrics: path must start with '/'")
	}
	return nil
}
