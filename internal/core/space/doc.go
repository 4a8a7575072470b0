// Package space 实现元组空间
//
// TSpace 是内存实现：每个键下保存一个 FIFO 条目序列，条目可以带过期时间。
// 读取方可以阻塞等待（In/Rd），写入后唤醒等待者并通知监听者。
// 后台 GC 按固定周期清除过期条目和空键，与任何多路复用器无关。
//
// 持久化实现见 space/badger，fx 模块按配置选择后端。
package space
