// Package badger 提供基于 BadgerDB 的持久化元组空间
//
// 条目以 "s/<key>\x00<seq>" 为键保存，seq 为 8 字节大端序号，
// 因此同一键下按前缀迭代即为 FIFO 顺序；Push 使用递减序号写到队首。
// 值为 8 字节过期时间（unix 毫秒，0 表示永不过期）加 protobuf 编码的报文。
//
// 阻塞读取依赖进程内唤醒，跨进程写入不会唤醒本进程的等待者。
//
//	sp, err := badger.Open(badger.DefaultConfig("/data/space.db"))
//	if err != nil {
//	    return err
//	}
//	defer sp.Close()
//
//	_ = sp.Out("acq.out", msg, 0)
//	m, err := sp.In(ctx, "acq.out", time.Second)
package badger
