package mux

import (
	"errors"
	"io"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

// ============================================================================
//                              接收循环
// ============================================================================

// receiveLoop 接收入站报文并按关联键分发
//
// 终止开始后继续接收，直到挂起表和发送队列都为空，
// 让已发送的请求仍有机会完成或过期。
func (m *Mux) receiveLoop() {
	defer close(m.receiverDone)

	for {
		if m.receiverShouldExit() {
			return
		}

		if !m.channel.IsConnected() {
			m.waitConnected()
			continue
		}

		msg, err := m.channel.Receive()
		if err != nil {
			m.handleReceiveError(err)
			continue
		}
		m.inc(types.CounterReceived)
		m.dispatch(msg)
	}
}

func (m *Mux) receiverShouldExit() bool {
	if m.isHard() {
		return true
	}
	if !m.isSoft() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending) == 0 && len(m.txQueue) == 0
}

// waitConnected 通道断开时挂起，直到发送循环完成一次连接尝试
func (m *Mux) waitConnected() {
	t := m.clock.Timer(m.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-m.connCh:
	case <-m.hardCh:
	case <-t.C:
	}
}

// handleReceiveError 接收失败时断开通道并通知发送循环重连
func (m *Mux) handleReceiveError(err error) {
	switch {
	case types.IsProtocolError(err):
		// 帧已完整读出，流未失步
		logger.Warn("入站报文解码失败，丢弃", "mux", m.cfg.Name, "error", err)
		return
	case errors.Is(err, io.EOF):
		logger.Info("对端关闭连接", "mux", m.cfg.Name, "channel", m.channel.Name())
	case m.isSoft():
		logger.Debug("终止过程中接收结束", "mux", m.cfg.Name, "error", err)
	default:
		logger.Warn("接收失败，断开通道", "mux", m.cfg.Name, "channel", m.channel.Name(), "error", err)
	}

	if derr := m.channel.Disconnect(); derr != nil {
		logger.Debug("断开通道失败", "mux", m.cfg.Name, "error", derr)
	}
	m.setState(types.MuxStateDisconnected)
	signal(m.workCh)
}

// dispatch 匹配挂起请求，未匹配时转交接收者
func (m *Mux) dispatch(msg *iso.Message) {
	msg.SetDirection(iso.DirectionIncoming)
	key := m.deriver.Key(msg)

	m.mu.Lock()
	req, found := m.pending[key]
	if found {
		delete(m.pending, key)
	}
	listener := m.listener
	m.mu.Unlock()

	if found {
		m.pendingChanged()
		if req.SetResponse(msg) {
			return
		}
		// 等待者已超时返回，响应不再投递
		n := m.inc(types.CounterRxExpired)
		logger.Debug("响应到达时请求已过期", "mux", m.cfg.Name, "key", key)
		if n%int64(m.cfg.RxExpiredSweepEvery) == 0 {
			m.sweep()
		}
		return
	}

	if listener != nil {
		m.inc(types.CounterRxForwarded)
		m.forward(listener, msg)
		return
	}

	m.inc(types.CounterRxUnmatched)
	if m.unmatchedLog.Allow() {
		logger.Warn("收到未匹配报文", "mux", m.cfg.Name, "mti", msg.MTI(), "key", key)
	}
}

// forward 调用接收者，接收者的 panic 不得终止接收循环
func (m *Mux) forward(l interfaces.RequestListener, msg *iso.Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("未匹配报文处理异常", "mux", m.cfg.Name, "panic", r)
		}
	}()
	l.Process(m, msg)
}
