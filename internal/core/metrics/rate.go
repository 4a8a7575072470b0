package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
// RateMeter - 速率计算器
// ============================================================================

// rateBuckets 窗口内的 1 秒桶数量
const rateBuckets = 60

// RateMeter 速率计算器（基于滑动窗口）
//
// 使用 60 个 1 秒桶来计算最近 60 秒的平均速率。
type RateMeter struct {
	clock clock.Clock

	mu       sync.Mutex
	buckets  [rateBuckets]int64
	lastIdx  int
	lastTime time.Time
}

// NewRateMeter 创建速率计算器
func NewRateMeter(clk clock.Clock) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateMeter{
		clock:    clk,
		lastTime: clk.Now(),
	}
}

// Add 计入 n 个事件
func (r *RateMeter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()
	r.buckets[r.lastIdx] += n
}

// Rate 最近 60 秒的平均速率（次/秒）
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance()

	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / rateBuckets
}

// Reset 清空窗口
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buckets = [rateBuckets]int64{}
	r.lastIdx = 0
	r.lastTime = r.clock.Now()
}

// advance 按流逝的整秒数滚动桶，调用方持锁
func (r *RateMeter) advance() {
	elapsed := r.clock.Now().Sub(r.lastTime)
	if elapsed < time.Second {
		return
	}

	seconds := int(elapsed / time.Second)
	if seconds >= rateBuckets {
		r.buckets = [rateBuckets]int64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % rateBuckets
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}
