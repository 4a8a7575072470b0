package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-isomux/internal/core/space/notify"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/lib/log"
)

// logger badger 空间日志
var logger = log.Logger("space/badger")

// ErrClosed 空间已关闭
var ErrClosed = notify.ErrClosed

// ttlSlack badger 自身 TTL 的余量
//
// 条目是否过期以值头中的时间为准，badger TTL 只负责最终回收。
const ttlSlack = time.Minute

var _ interfaces.Space = (*Space)(nil)

// Space 基于 BadgerDB 的元组空间
type Space struct {
	db    *badger.DB
	cfg   Config
	clock clock.Clock
	bc    *notify.Broadcaster

	closed atomic.Bool

	// mu 串行化所有修改操作，序号分配和取走都在锁内完成
	mu      sync.Mutex
	headSeq uint64
	tailSeq uint64

	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	started  atomic.Bool
}

// Open 打开或创建空间
func Open(cfg Config) (*Space, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("space/badger: create dir: %w", err)
	}

	db, err := badger.Open(buildBadgerOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("space/badger: open %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Space{
		db:       db,
		cfg:      cfg,
		clock:    cfg.Clock,
		bc:       notify.NewBroadcaster(),
		headSeq:  seqMidpoint - 1,
		tailSeq:  seqMidpoint,
		gcCtx:    ctx,
		gcCancel: cancel,
	}
	if err := s.loadSequences(); err != nil {
		cancel()
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// buildBadgerOptions 根据配置构建 BadgerDB 选项
func buildBadgerOptions(cfg Config) badger.Options {
	return badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithLogger(badgerLogger{})
}

// badgerLogger 适配器：将 badger 日志转到 slog
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (badgerLogger) Debugf(string, ...interface{}) {}

// loadSequences 从已有数据恢复首尾序号
func (s *Space) loadSequences() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			_, seq, ok := decodeKey(it.Item().Key())
			if !ok {
				continue
			}
			if seq >= seqMidpoint && seq >= s.tailSeq {
				s.tailSeq = seq + 1
			}
			if seq < seqMidpoint && seq <= s.headSeq {
				s.headSeq = seq - 1
			}
		}
		return nil
	})
}

// Start 启动过期清理和值日志回收
func (s *Space) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	if s.cfg.GCInterval > 0 {
		s.startLoop(s.cfg.GCInterval, func() {
			n, err := s.GC()
			if err != nil {
				logger.Warn("清理过期条目失败", "error", err)
				return
			}
			if n > 0 {
				logger.Debug("清理过期条目", "count", n)
			}
		})
	}
	if s.cfg.ValueLogGCInterval > 0 {
		s.startLoop(s.cfg.ValueLogGCInterval, s.runValueLogGC)
	}
	return nil
}

func (s *Space) startLoop(interval time.Duration, fn func()) {
	ticker := s.clock.Ticker(interval)
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-s.gcCtx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// runValueLogGC 运行值日志回收直到没有可回收的文件
func (s *Space) runValueLogGC() {
	for !s.closed.Load() {
		if err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio); err != nil {
			return
		}
	}
}

// GC 删除所有过期条目，返回删除数量
func (s *Space) GC() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	now := s.clock.Now()

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var exp time.Time
			if err := item.Value(func(v []byte) error {
				var err error
				exp, err = decodeHeader(v)
				return err
			}); err != nil {
				return err
			}
			if expired(exp, now) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if len(stale) > 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		wb := s.db.NewWriteBatch()
		defer wb.Cancel()
		for _, k := range stale {
			if err := wb.Delete(k); err != nil {
				return 0, err
			}
		}
		if err := wb.Flush(); err != nil {
			return 0, err
		}
	}

	// 释放过期读取留下的唤醒通道
	s.bc.WakeAll()
	return len(stale), nil
}

// ============================================================================
//                              写入
// ============================================================================

// Out 在键尾部写入
func (s *Space) Out(key string, m *iso.Message, ttl time.Duration) error {
	return s.write(key, m, ttl, false)
}

// Push 在键头部写入
func (s *Space) Push(key string, m *iso.Message, ttl time.Duration) error {
	return s.write(key, m, ttl, true)
}

func (s *Space) write(key string, m *iso.Message, ttl time.Duration, head bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if strings.IndexByte(key, keySep) >= 0 {
		return ErrInvalidKey
	}

	var expires time.Time
	if ttl > 0 {
		expires = s.clock.Now().Add(ttl)
	}
	val, err := encodeValue(expires, m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var seq uint64
	if head {
		seq = s.headSeq
	} else {
		seq = s.tailSeq
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(encodeKey(key, seq), val)
		if ttl > 0 {
			e = e.WithTTL(ttl + ttlSlack)
		}
		return txn.SetEntry(e)
	})
	if err == nil {
		if head {
			s.headSeq--
		} else {
			s.tailSeq++
		}
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("space/badger: write %s: %w", key, err)
	}

	s.bc.Wake(key)
	s.bc.Notify(key, m)
	return nil
}

// ============================================================================
//                              读取
// ============================================================================

// first 返回键的第一个未过期条目
//
// take 为 true 时在同一事务中删除该条目以及它前面的过期条目。
func (s *Space) first(key string, take bool) (*iso.Message, time.Time, error) {
	if s.closed.Load() {
		return nil, time.Time{}, ErrClosed
	}
	if strings.IndexByte(key, keySep) >= 0 {
		return nil, time.Time{}, ErrInvalidKey
	}
	now := s.clock.Now()

	var (
		found    *iso.Message
		foundExp time.Time
	)
	scan := func(txn *badger.Txn) ([][]byte, error) {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 8
		opts.Prefix = prefixFor(key)
		it := txn.NewIterator(opts)
		defer it.Close()

		var drop [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var (
				exp time.Time
				msg *iso.Message
			)
			if err := item.Value(func(v []byte) error {
				var err error
				exp, msg, err = decodeValue(v)
				return err
			}); err != nil {
				return nil, err
			}
			if expired(exp, now) {
				drop = append(drop, item.KeyCopy(nil))
				continue
			}
			found, foundExp = msg, exp
			drop = append(drop, item.KeyCopy(nil))
			return drop, nil
		}
		return drop, nil
	}

	if !take {
		err := s.db.View(func(txn *badger.Txn) error {
			_, err := scan(txn)
			return err
		})
		return found, foundExp, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		found, foundExp = nil, time.Time{}
		drop, err := scan(txn)
		if err != nil {
			return err
		}
		for _, k := range drop {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, time.Time{}, err
	}
	return found, foundExp, nil
}

func (s *Space) mustFirst(key string, take bool) *iso.Message {
	m, _, err := s.first(key, take)
	if err != nil && !errors.Is(err, ErrClosed) {
		logger.Warn("读取条目失败", "key", key, "error", err)
	}
	return m
}

// Inp 非阻塞取走
func (s *Space) Inp(key string) *iso.Message {
	return s.mustFirst(key, true)
}

// Rdp 非阻塞读取
func (s *Space) Rdp(key string) *iso.Message {
	return s.mustFirst(key, false)
}

// In 阻塞取走
func (s *Space) In(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error) {
	m, _, err := s.InExpiry(ctx, key, timeout)
	return m, err
}

// InExpiry 阻塞取走，同时返回条目头部记录的过期时间
func (s *Space) InExpiry(ctx context.Context, key string, timeout time.Duration) (*iso.Message, time.Time, error) {
	var exp time.Time
	m, err := s.bc.Block(ctx, s.clock, key, timeout, func() (*iso.Message, error) {
		var (
			m   *iso.Message
			err error
		)
		m, exp, err = s.first(key, true)
		return m, err
	})
	if m == nil {
		exp = time.Time{}
	}
	return m, exp, err
}

// Rd 阻塞读取
func (s *Space) Rd(ctx context.Context, key string, timeout time.Duration) (*iso.Message, error) {
	return s.bc.Block(ctx, s.clock, key, timeout, func() (*iso.Message, error) {
		m, _, err := s.first(key, false)
		return m, err
	})
}

// Size 未过期条目数
func (s *Space) Size(key string) int {
	n := 0
	_ = s.each(prefixFor(key), func(string) bool {
		n++
		return true
	})
	return n
}

// Keys 存在未过期条目的键（升序）
func (s *Space) Keys() []string {
	seen := make(map[string]struct{})
	_ = s.each([]byte(keyPrefix), func(k string) bool {
		seen[k] = struct{}{}
		return true
	})
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// each 按顺序遍历前缀下的未过期条目
func (s *Space) each(prefix []byte, fn func(key string) bool) error {
	if s.closed.Load() {
		return ErrClosed
	}
	now := s.clock.Now()
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key, _, ok := decodeKey(item.Key())
			if !ok {
				continue
			}
			var exp time.Time
			if err := item.Value(func(v []byte) error {
				var err error
				exp, err = decodeHeader(v)
				return err
			}); err != nil {
				return err
			}
			if expired(exp, now) {
				continue
			}
			if !fn(key) {
				return nil
			}
		}
		return nil
	})
}

// AddListener 注册写入通知
func (s *Space) AddListener(key string, l interfaces.SpaceListener) string {
	return s.bc.AddListener(key, l)
}

// RemoveListener 移除写入通知
func (s *Space) RemoveListener(key, id string) {
	s.bc.RemoveListener(key, id)
}

// Close 停止后台任务、唤醒阻塞读取并关闭数据库
func (s *Space) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.gcCancel()
	s.gcWg.Wait()
	s.bc.Close()

	// 等待进行中的修改完成
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
