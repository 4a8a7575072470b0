package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration JSON 友好的 time.Duration
//
// 反序列化接受 "5s"、"250ms" 这样的字符串，或纳秒整数；
// 序列化输出字符串形式。
type Duration time.Duration

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("config: duration must be a string like \"5s\" or integer nanoseconds")
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 转换为 time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String 字符串形式
func (d Duration) String() string {
	return time.Duration(d).String()
}
