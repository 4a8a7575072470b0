// Package mocks 提供测试用 Mock 实现
//
//   - MockChannel: 内存通道，记录发送顺序、脚本化失败、注入入站报文
//   - MockRequestListener: gomock 生成的 interfaces.RequestListener
package mocks
