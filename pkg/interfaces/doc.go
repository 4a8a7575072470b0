// Package interfaces 定义 isomux 的公共接口
//
// 采用扁平命名，一个接口文件对应一个实现目录：
//
//   - channel.go       - 双工报文通道（internal/core/channel）
//   - multiplexer.go   - 多路复用器与挂起请求句柄（internal/core/mux, internal/core/spacemux）
//   - listener.go      - 未匹配消息接收者
//   - space.go         - 阻塞式关联存储（internal/core/space）
//   - registry.go      - 按名称查找多路复用器（internal/core/registry）
//
// 接口中出现的消息类型均为 *iso.Message。
package interfaces
