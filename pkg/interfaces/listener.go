// Package interfaces - RequestListener 未匹配消息接收者
package interfaces

import "github.com/dep2p/go-isomux/pkg/iso"

// RequestListener 处理没有对应挂起请求的入站报文
//
// 每条未匹配报文最多调用一次 Process。Process 在接收循环中同步执行，
// 耗时处理应自行转入后台。
type RequestListener interface {
	Process(source Source, m *iso.Message)
}

// RequestListenerFunc 函数适配器
type RequestListenerFunc func(source Source, m *iso.Message)

// Process 实现 RequestListener
func (f RequestListenerFunc) Process(source Source, m *iso.Message) {
	f(source, m)
}
