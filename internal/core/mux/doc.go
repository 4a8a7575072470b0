// Package mux 实现基于队列的 ISO-8583 多路复用器
//
// Mux 在一个异步全双工 Channel 之上提供同步请求/响应语义：
//
//	m, err := mux.New(ch, mux.WithName("acquirer"))
//	if err != nil {
//	    return err
//	}
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//	defer m.Terminate(10 * time.Second)
//
//	resp, err := m.Request(ctx, msg, 30*time.Second)
//	if resp == nil && err == nil {
//	    // 超时
//	}
//
// # 内部结构
//
//   - 发送队列：FIFO，元素为裸报文或挂起请求句柄
//   - 挂起表：关联键 → 句柄，发送循环登记，接收循环匹配后移除
//   - 发送循环：连接通道、重连退避、按序发送
//   - 接收循环：接收报文、按关联键匹配、未匹配转交 RequestListener
//
// 两个循环只在终止流程中退出，通道错误一律记录日志后退避重试。
//
// # 关闭
//
// Terminate(grace) 先软终止（保留队列和挂起表），等待发送循环最多 grace；
// 超时后升级为硬终止（清空队列和挂起表，唤醒所有等待者）。
// 随后等待挂起表清空，断开通道，等待接收循环退出。
package mux
