package space

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-isomux/internal/core/space/notify"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
)

var logger = log.Logger("core/space")

// ErrClosed 空间已关闭
var ErrClosed = notify.ErrClosed

var _ interfaces.Space = (*TSpace)(nil)

// entry 空间条目，expires 为零值表示永不过期
type entry struct {
	msg     *iso.Message
	expires time.Time
}

// TSpace 内存元组空间
type TSpace struct {
	cfg   Config
	clock clock.Clock
	bc    *notify.Broadcaster

	mu      sync.Mutex
	entries map[string][]entry
	closed  bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// New 创建内存空间，需调用 Start 启动后台清理
func New(opts ...Option) *TSpace {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &TSpace{
		cfg:     cfg,
		clock:   cfg.Clock,
		bc:      notify.NewBroadcaster(),
		entries: make(map[string][]entry),
	}
}

// Start 启动后台清理
func (s *TSpace) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.cfg.GCInterval <= 0 || s.gcCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.gcCancel = cancel
	s.gcWg.Add(1)
	go s.gcLoop(ctx, s.clock.Ticker(s.cfg.GCInterval))
	return nil
}

func (s *TSpace) gcLoop(ctx context.Context, ticker *clock.Ticker) {
	defer s.gcWg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.GC(); n > 0 {
				logger.Debug("清理过期条目", "count", n)
			}
		}
	}
}

// GC 清除过期条目和空键，返回清除数量
func (s *TSpace) GC() int {
	now := s.clock.Now()
	removed := 0

	s.mu.Lock()
	for k, list := range s.entries {
		kept := list[:0]
		for _, e := range list {
			if e.expired(now) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.entries, k)
		} else {
			s.entries[k] = kept
		}
	}
	s.mu.Unlock()

	s.bc.WakeAll()
	return removed
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func (s *TSpace) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

// Out 在键尾部写入
func (s *TSpace) Out(key string, m *iso.Message, ttl time.Duration) error {
	return s.write(key, m, ttl, false)
}

// Push 在键头部写入
func (s *TSpace) Push(key string, m *iso.Message, ttl time.Duration) error {
	return s.write(key, m, ttl, true)
}

func (s *TSpace) write(key string, m *iso.Message, ttl time.Duration, head bool) error {
	e := entry{msg: m, expires: s.expiry(ttl)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if head {
		s.entries[key] = append([]entry{e}, s.entries[key]...)
	} else {
		s.entries[key] = append(s.entries[key], e)
	}
	s.mu.Unlock()

	s.bc.Wake(key)
	s.bc.Notify(key, m)
	return nil
}

// first 返回第一个未过期条目，顺带丢弃其前面的过期条目，调用方持锁
func (s *TSpace) first(key string, take bool) (*iso.Message, time.Time) {
	list := s.entries[key]
	now := s.clock.Now()
	for len(list) > 0 && list[0].expired(now) {
		list = list[1:]
	}
	if len(list) == 0 {
		delete(s.entries, key)
		return nil, time.Time{}
	}
	e := list[0]
	if take {
		list = list[1:]
	}
	if len(list) == 0 {
		delete(s.entries, key)
	} else {
		s.entries[key] = list
	}
	return e.msg, e.expires
}

// Inp 非阻塞取走
func (s *TSpace) Inp(key string) *iso.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := s.first(key, true)
	return m
}

// Rdp 非阻塞读取
func (s *TSpace) Rdp(key string) *iso.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, _ := s.first(key, false)
	return m
}

// In 阻塞取走
func (s *TSpace) In(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error) {
	return s.bc.Block(ctx, s.clock, key, timeout, func() (*iso.Message, error) {
		return s.Inp(key), nil
	})
}

// InExpiry 阻塞取走，同时返回条目的过期时间
func (s *TSpace) InExpiry(ctx context.Context, key string, timeout time.Duration) (*iso.Message, time.Time, error) {
	var exp time.Time
	m, err := s.bc.Block(ctx, s.clock, key, timeout, func() (*iso.Message, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var m *iso.Message
		m, exp = s.first(key, true)
		return m, nil
	})
	if m == nil {
		exp = time.Time{}
	}
	return m, exp, err
}

// Rd 阻塞读取
func (s *TSpace) Rd(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error) {
	return s.bc.Block(ctx, s.clock, key, timeout, func() (*iso.Message, error) {
		return s.Rdp(key), nil
	})
}

// Size 未过期条目数
func (s *TSpace) Size(key string) int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries[key] {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Keys 存在未过期条目的键（升序）
func (s *TSpace) Keys() []string {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k, list := range s.entries {
		for _, e := range list {
			if !e.expired(now) {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// AddListener 注册写入通知
func (s *TSpace) AddListener(key string, l interfaces.SpaceListener) string {
	return s.bc.AddListener(key, l)
}

// RemoveListener 移除写入通知
func (s *TSpace) RemoveListener(key, id string) {
	s.bc.RemoveListener(key, id)
}

// Close 停止后台清理并唤醒所有阻塞读取
func (s *TSpace) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.gcCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.gcWg.Wait()
	s.bc.Close()
	return nil
}
