// Package adaptor 实现元组空间变体的通道适配器
//
// Adaptor 把一个 Channel 接到元组空间的两个队列上：
// 从 "<name>.out" 取出报文发送，把收到的报文写入 "<name>.in"。
// 连接可用时在 "<name>.ready" 写入就绪标记，断开时取走，
// spacemux 通过读取该标记判断连接状态。
//
//	a, err := adaptor.New(ch, sp, adaptor.WithName("acquirer"))
//	if err != nil {
//	    return err
//	}
//	if err := a.Start(ctx); err != nil {
//	    return err
//	}
//	defer a.Stop(ctx)
//
// 发送失败时报文被放回出站队列头部，重连后按原顺序继续发送。
package adaptor
