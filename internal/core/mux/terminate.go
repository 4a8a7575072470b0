package mux

import (
	"time"

	"github.com/dep2p/go-isomux/pkg/types"
)

// ============================================================================
//                              终止流程
// ============================================================================

// Terminate 两阶段关闭
//
// 软终止后最多等待 grace 让发送循环发完队列，grace 为 0 时一直等待；
// 超时则硬终止。之后等待挂起表清空（每 SweepInterval 清理一次过期句柄），
// 断开通道并等待接收循环退出。重复调用返回第一次的结果。
func (m *Mux) Terminate(grace time.Duration) error {
	m.terminateOnce.Do(func() {
		m.terminateErr = m.terminate(grace)
	})
	return m.terminateErr
}

func (m *Mux) terminate(grace time.Duration) error {
	logger.Info("开始终止多路复用器", "mux", m.cfg.Name, "grace", grace)
	m.softTerminate()

	if !m.started.Load() {
		m.hardTerminate()
		err := m.channel.Disconnect()
		m.setState(types.MuxStateTerminated)
		return err
	}

	if !m.waitSender(grace) {
		logger.Warn("发送循环未在宽限期内结束，强制终止", "mux", m.cfg.Name, "queued", m.queueLen())
		m.hardTerminate()
		<-m.senderDone
	}

	m.drainPending()

	err := m.channel.Disconnect()
	signal(m.connCh)
	<-m.receiverDone

	m.cancel()
	m.setState(types.MuxStateTerminated)
	logger.Info("多路复用器已终止", "mux", m.cfg.Name)
	return err
}

// softTerminate 设置终止标志并唤醒各循环，保留队列和挂起表
func (m *Mux) softTerminate() {
	m.softOnce.Do(func() {
		m.mu.Lock()
		close(m.softCh)
		m.mu.Unlock()
		m.setState(types.MuxStateTerminating)
		signal(m.workCh)
		signal(m.connCh)
	})
}

// hardTerminate 清空队列和挂起表，唤醒所有等待中的调用方
func (m *Mux) hardTerminate() {
	m.softTerminate()
	m.hardOnce.Do(func() {
		m.mu.Lock()
		close(m.hardCh)
		queue := m.txQueue
		pending := m.pending
		m.txQueue = nil
		m.pending = make(map[string]*Request)
		m.mu.Unlock()

		m.cancel()

		discarded := 0
		for _, it := range queue {
			if it.req != nil {
				it.req.cancel()
			}
			discarded++
		}
		for _, r := range pending {
			r.cancel()
			discarded++
		}
		if discarded > 0 {
			logger.Warn("硬终止丢弃未完成工作", "mux", m.cfg.Name, "count", discarded)
		}
		signal(m.drainCh)
	})
}

// waitSender 等待发送循环退出，grace 为 0 时一直等待
func (m *Mux) waitSender(grace time.Duration) bool {
	if grace <= 0 {
		<-m.senderDone
		return true
	}
	t := m.clock.Timer(grace)
	defer t.Stop()
	select {
	case <-m.senderDone:
		return true
	case <-t.C:
		return false
	}
}

// drainPending 等待挂起表清空
func (m *Mux) drainPending() {
	for {
		m.sweep()
		if m.isHard() {
			// 硬终止后发送循环可能在清空之后又登记了句柄
			m.mu.Lock()
			leftover := m.pending
			m.pending = make(map[string]*Request)
			m.mu.Unlock()
			for _, r := range leftover {
				r.cancel()
			}
			return
		}
		if m.pendingLen() == 0 {
			return
		}

		t := m.clock.Timer(m.cfg.SweepInterval)
		select {
		case <-m.drainCh:
		case <-m.hardCh:
		case <-t.C:
		}
		t.Stop()
	}
}
