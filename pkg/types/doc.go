// Package types 定义 isomux 的公共数据结构
//
// 这是整个系统的最底层包，只依赖标准库。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - errors.go   - 通道故障分类（连接拒绝、协议错误、未连接、已关闭）
//   - enums.go    - MuxState 多路复用器状态
//   - counters.go - Counters 计数器快照
package types
