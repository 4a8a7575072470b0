package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FromJSON 从 JSON 数据创建配置，未出现的字段保留默认值
//
// 示例 JSON:
//
//	{
//	  "name": "acquirer",
//	  "mux": {"trace_field": 11, "reconnect_delay": "5s"},
//	  "channel": {"kind": "tcp", "address": "10.0.0.8:8000"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从文件加载配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return FromJSON(data)
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Clone 深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Space.KeyFields = append([]int(nil), c.Space.KeyFields...)
	cp.Space.MTIMapping = append([]string(nil), c.Space.MTIMapping...)
	return &cp
}
