package mux

import (
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// ============================================================================
//                              发送循环
// ============================================================================

// sendLoop 按 FIFO 发送队列中的报文，并负责连接和重连
//
// 软终止后队列发完即退出；硬终止立即退出。
func (m *Mux) sendLoop() {
	defer close(m.senderDone)

	firstAttempt := true
	for {
		if m.isHard() {
			return
		}
		if m.isSoft() && m.queueLen() == 0 {
			return
		}

		if m.channel.IsConnected() {
			m.setState(types.MuxStateConnected)

			it, ok := m.peek()
			if !ok {
				m.waitWork()
				continue
			}
			m.transmit(it)
			continue
		}

		m.setState(types.MuxStateDisconnected)
		if !m.cfg.Reconnect {
			// 由外部负责连接，定期检查
			m.waitDisconnected()
			continue
		}

		if !firstAttempt && !m.sleep(m.cfg.ReconnectDelay) {
			return
		}
		if !m.connect(firstAttempt) {
			if !m.sleep(m.cfg.RetryDelay) {
				return
			}
		}
		firstAttempt = false
	}
}

// connect 建立或重建连接，返回是否成功
func (m *Mux) connect(first bool) bool {
	m.setState(types.MuxStateConnecting)

	var err error
	if first {
		err = m.channel.Connect(m.ctx)
	} else {
		err = m.channel.Reconnect(m.ctx)
	}
	m.inc(types.CounterConnects)

	// 无论成败都让接收循环重新检查通道状态
	signal(m.connCh)

	if err != nil {
		if m.isHard() {
			return false
		}
		if types.IsConnectRefused(err) {
			logger.Debug("连接被拒绝，稍后重试", "mux", m.cfg.Name, "channel", m.channel.Name())
		} else {
			logger.Warn("连接失败", "mux", m.cfg.Name, "channel", m.channel.Name(), "error", err)
		}
		m.setState(types.MuxStateDisconnected)
		return false
	}

	logger.Info("通道已连接", "mux", m.cfg.Name, "channel", m.channel.Name())
	m.setState(types.MuxStateConnected)
	return true
}

// transmit 发送队首元素
//
// 发送成功或遇到协议错误时出队；IO 错误保留在队首，断开通道后等待重连再发。
func (m *Mux) transmit(it txItem) {
	msg := it.msg
	var key string

	if it.req != nil {
		if it.req.IsExpired() {
			m.pop(it)
			m.inc(types.CounterTxExpired)
			logger.Debug("请求发送前已过期，丢弃", "mux", m.cfg.Name, "id", log.TruncateID(it.req.ID(), 8))
			return
		}

		// 先登记再发送，避免响应先于登记到达
		key = m.deriver.Key(it.req.msg)
		m.mu.Lock()
		m.pending[key] = it.req
		m.mu.Unlock()
		it.req.SetTransmitted()
		msg = it.req.msg
	}

	err := m.channel.Send(msg)
	if err == nil {
		m.pop(it)
		m.inc(types.CounterTransmitted)
		return
	}

	if it.req != nil {
		it.req.clearTransmitted()
		m.unregister(key, it.req)
	}

	if types.IsProtocolError(err) {
		m.pop(it)
		logger.Warn("报文编码失败，丢弃", "mux", m.cfg.Name, "mti", msg.MTI(), "error", err)
		return
	}

	logger.Warn("发送失败，断开通道等待重连", "mux", m.cfg.Name, "channel", m.channel.Name(), "error", err)
	if derr := m.channel.Disconnect(); derr != nil {
		logger.Debug("断开通道失败", "mux", m.cfg.Name, "error", derr)
	}
	signal(m.connCh)
	m.sleep(m.cfg.RetryDelay)
}

// peek 查看队首元素
func (m *Mux) peek() (txItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txQueue) == 0 {
		return txItem{}, false
	}
	return m.txQueue[0], true
}

// pop 移除队首元素，队列已被硬终止清空时不做任何事
func (m *Mux) pop(it txItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txQueue) == 0 || m.txQueue[0] != it {
		return
	}
	m.txQueue[0] = txItem{}
	m.txQueue = m.txQueue[1:]
}

// unregister 仅当键仍指向该句柄时移除
func (m *Mux) unregister(key string, r *Request) {
	m.mu.Lock()
	if cur, ok := m.pending[key]; ok && cur == r {
		delete(m.pending, key)
	}
	m.mu.Unlock()
}

// waitWork 连接正常且队列为空时挂起，直到有新报文、通道状态变化或终止
func (m *Mux) waitWork() {
	select {
	case <-m.workCh:
	case <-m.softCh:
	case <-m.hardCh:
	}
}

// waitDisconnected 未启用重连时等待外部恢复连接
func (m *Mux) waitDisconnected() {
	t := m.clock.Timer(m.cfg.RetryDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-m.workCh:
	case <-m.hardCh:
	}
}
