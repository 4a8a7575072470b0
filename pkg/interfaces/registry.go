// Package interfaces - Registry 多路复用器名称目录
//
// 进程内由 fx 构造一次并注入，替代全局可变目录。
package interfaces

// Registry 按逻辑名称登记和查找多路复用器
type Registry interface {
	// Register 登记，名称重复返回错误
	Register(name string, m Multiplexer) error

	// Unregister 注销，名称不存在返回错误
	Unregister(name string) error

	// Lookup 按名称查找
	Lookup(name string) (Multiplexer, error)

	// Names 已登记名称（升序）
	Names() []string
}
