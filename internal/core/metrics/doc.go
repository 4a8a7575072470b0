// Package metrics 把多路复用器计数器导出为 Prometheus 指标
//
// Collector 在每次抓取时遍历注册表中的多路复用器，读取计数器快照，
// 每个计数器对应一个带 mux 标签的序列：
//
//	isomux_connects_total{mux="acquirer"} 3
//	isomux_tx_total{mux="acquirer"} 1200
//	isomux_tx_pending{mux="acquirer"} 0
//
// 另外导出连接状态 isomux_connected 和最近 60 秒的发送速率 isomux_tx_rate。
//
// Reporter 在配置了监听地址时通过 promhttp 提供 /metrics。
package metrics
