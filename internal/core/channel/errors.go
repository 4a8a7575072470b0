package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/dep2p/go-isomux/pkg/types"
)

var (
	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("channel: listener closed")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("channel: invalid config")
)

// classifyDialError 把拒绝连接映射为 types.ErrConnectRefused
func classifyDialError(addr string, err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %s", types.ErrConnectRefused, addr)
	}
	return fmt.Errorf("channel: dial %s: %w", addr, err)
}

// classifyIOError 本端主动断开导致的错误统一为 types.ErrChannelClosed
func classifyIOError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), types.IsProtocolError(err):
		return err
	case errors.Is(err, net.ErrClosed):
		return types.ErrChannelClosed
	default:
		return err
	}
}
