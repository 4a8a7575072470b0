package types

// ============================================================================
//                              MuxState - 多路复用器状态
// ============================================================================

// MuxState 多路复用器状态
//
// 连接状态 DISCONNECTED → CONNECTING → CONNECTED，
// TERMINATING → TERMINATED 可从任意状态进入。
type MuxState int

const (
	// MuxStateDisconnected 未连接
	MuxStateDisconnected MuxState = iota
	// MuxStateConnecting 正在连接
	MuxStateConnecting
	// MuxStateConnected 已连接
	MuxStateConnected
	// MuxStateTerminating 正在终止
	MuxStateTerminating
	// MuxStateTerminated 已终止
	MuxStateTerminated
)

// String 返回状态的字符串表示
func (s MuxState) String() string {
	switch s {
	case MuxStateDisconnected:
		return "disconnected"
	case MuxStateConnecting:
		return "connecting"
	case MuxStateConnected:
		return "connected"
	case MuxStateTerminating:
		return "terminating"
	case MuxStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsTerminal 是否处于终止流程中
func (s MuxState) IsTerminal() bool {
	return s == MuxStateTerminating || s == MuxStateTerminated
}
