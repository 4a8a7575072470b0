package isomux

import "errors"

// 公共错误定义
var (
	// ErrNotStarted 未启动
	ErrNotStarted = errors.New("isomux: not started")

	// ErrAlreadyStarted 已启动
	ErrAlreadyStarted = errors.New("isomux: already started")

	// ErrClosed 已关闭
	ErrClosed = errors.New("isomux: closed")

	// ErrInvalidOption 选项无效
	ErrInvalidOption = errors.New("isomux: invalid option")
)
