// Package spacemux 实现基于元组空间的多路复用器
//
// SpaceMux 不直接持有通道：请求写入出站队列，由 adaptor 发送；
// 收到的报文由 adaptor 写入入站队列，SpaceMux 在入站队列上注册监听，
// 按关联键把响应转写到请求方等待的键下。
//
// 请求流程：
//
//  1. 计算关联键 key = out + "." + 映射后的 MTI + 关联字段
//  2. 写入挂起标记 key + ".req"
//  3. 请求写入出站队列
//  4. 在 key 上阻塞读取，超时返回 nil
//
// 监听器收到入站报文时取走对应的挂起标记，取到则把报文写到 key 下，
// 否则交给 RequestListener 或写入未匹配队列。
package spacemux
