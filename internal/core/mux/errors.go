package mux

import (
	"errors"

	"github.com/dep2p/go-isomux/pkg/types"
)

// 多路复用器错误定义
var (
	// ErrTerminated 已进入终止流程
	ErrTerminated = types.ErrTerminated

	// ErrNilChannel 未提供通道
	ErrNilChannel = errors.New("mux: nil channel")

	// ErrNilMessage 报文为空
	ErrNilMessage = errors.New("mux: nil message")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("mux: invalid config")

	// ErrUnsupportedRequest 句柄不是本引擎创建的
	ErrUnsupportedRequest = errors.New("mux: unsupported pending request type")

	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("mux: already started")
)
