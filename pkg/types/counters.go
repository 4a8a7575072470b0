package types

import (
	"fmt"
	"strings"
)

// CounterIndex 计数器下标
type CounterIndex int

// 计数器下标，顺序固定
const (
	CounterConnects CounterIndex = iota
	CounterTransmitted
	CounterReceived
	CounterTxExpired
	CounterRxExpired
	CounterTxPending
	CounterRxPending
	CounterRxUnmatched
	CounterRxForwarded

	// NumCounters 计数器数量
	NumCounters
)

var counterNames = [NumCounters]string{
	"connects",
	"tx",
	"rx",
	"tx_expired",
	"rx_expired",
	"tx_pending",
	"rx_pending",
	"rx_unmatched",
	"rx_forwarded",
}

// String 返回计数器名称
func (i CounterIndex) String() string {
	if i < 0 || i >= NumCounters {
		return fmt.Sprintf("unknown(%d)", int(i))
	}
	return counterNames[i]
}

// IsGauge 是否为瞬时值（pending 类），其余计数器单调递增
func (i CounterIndex) IsGauge() bool {
	return i == CounterTxPending || i == CounterRxPending
}

// Counters 多路复用器计数器快照
//
// TxPending/RxPending 在读取时由队列和待响应表的实际大小计算，
// 其余字段单调递增，仅在显式重置时清零。
type Counters struct {
	Connects    int64 // 连接尝试次数
	Transmitted int64 // 已发送消息数
	Received    int64 // 已接收入站消息数
	TxExpired   int64 // 发送前已过期的请求数
	RxExpired   int64 // 响应到达时已过期的请求数
	TxPending   int64 // 待发送队列长度
	RxPending   int64 // 待响应表大小
	RxUnmatched int64 // 无匹配且无监听器的入站消息数
	RxForwarded int64 // 转发给监听器的入站消息数
}

// Array 以固定顺序返回计数器数组
func (c Counters) Array() [NumCounters]int64 {
	return [NumCounters]int64{
		c.Connects,
		c.Transmitted,
		c.Received,
		c.TxExpired,
		c.RxExpired,
		c.TxPending,
		c.RxPending,
		c.RxUnmatched,
		c.RxForwarded,
	}
}

// Get 按下标获取计数器值
func (c Counters) Get(i CounterIndex) int64 {
	if i < 0 || i >= NumCounters {
		return 0
	}
	return c.Array()[i]
}

// String 返回 "tx=1, rx=1, ..." 格式的计数器摘要
func (c Counters) String() string {
	arr := c.Array()
	parts := make([]string, 0, NumCounters)
	for i, v := range arr {
		parts = append(parts, fmt.Sprintf("%s=%d", CounterIndex(i), v))
	}
	return strings.Join(parts, ", ")
}
