// Package isomux 提供 ISO-8583 请求/响应多路复用
//
// 金融交易交换通常在一条长连接上异步收发报文，isomux 把这样的
// 全双工通道转换为同步的请求/响应调用：请求发出后按关联键等待匹配的响应，
// 未匹配的入站报文转交给接收者。
//
// # 快速开始
//
//	sw, err := isomux.Start(ctx,
//	    isomux.WithName("acquirer"),
//	    isomux.WithChannel(config.ChannelTCP, "10.0.0.8:8000"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sw.Close()
//
//	req := iso.New("0200").Set(11, "000001").Set(41, "29110001")
//	resp, err := sw.Request(ctx, req, 30*time.Second)
//	if err == nil && resp == nil {
//	    // 超时
//	}
//
// # 两种实现
//
// Mode 为 queue 时使用 internal/core/mux：内存发送队列加挂起表，
// 关联键为终端号（41）+ 跟踪字段（默认 11）。
//
// Mode 为 space 时使用元组空间变体：通道适配器（internal/core/adaptor）
// 在 <name>.out / <name>.in 两个空间队列与通道之间搬运报文，
// internal/core/spacemux 按 MTI 映射和关联字段（默认 41、11）匹配请求和响应。
// 空间后端可以是内存或 BadgerDB。
//
// # 组件装配
//
// Switch 用 fx 按配置装配各组件：
//
//	channel → mux                          (queue)
//	channel → space → adaptor → spacemux   (space)
//	registry → metrics
//
// 各组件包都提供 Module() 和 ConfigFromUnified，也可以单独使用。
package isomux
