// Package channel 提供内置的报文通道实现
//
// TCPChannel 和 WSChannel 都以 pkg/iso 的 protobuf 编码传输报文：
// TCP 上每帧前置 varint 长度，WebSocket 上每条二进制消息承载一帧。
//
// 客户端通道由多路复用器负责 Connect/Reconnect：
//
//	ch := channel.NewTCPChannel("10.0.0.8:8000", channel.WithName("acquirer"))
//	m, err := mux.New(ch)
//
// 服务端通道由 Listener.Accept 或 WSHandler.Accept 返回，创建时已经连接，
// 不支持 Reconnect。
//
// 错误按 types 包的通道故障分类返回：拨号被拒绝为 ErrConnectRefused，
// 编解码失败为 ErrProtocol，对端正常关闭为 io.EOF。
package channel
