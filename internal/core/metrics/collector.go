package metrics

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/lib/log"
	"github.com/dep2p/go-isomux/pkg/types"
)

// logger 指标日志
var logger = log.Logger("core/metrics")

const muxLabel = "mux"

var _ prometheus.Collector = (*Collector)(nil)

// Collector 按注册表导出所有多路复用器的计数器
type Collector struct {
	registry interfaces.Registry
	clock    clock.Clock

	counterDescs [types.NumCounters]*prometheus.Desc
	connected    *prometheus.Desc
	txRate       *prometheus.Desc

	// mu 保护速率计算状态
	mu     sync.Mutex
	meters map[string]*RateMeter
	lastTx map[string]int64
}

// NewCollector 创建收集器
func NewCollector(namespace string, reg interfaces.Registry, clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.New()
	}
	c := &Collector{
		registry: reg,
		clock:    clk,
		meters:   make(map[string]*RateMeter),
		lastTx:   make(map[string]int64),
	}

	for i := types.CounterIndex(0); i < types.NumCounters; i++ {
		name := i.String()
		help := "多路复用器计数器 " + name
		if !i.IsGauge() {
			name += "_total"
		}
		c.counterDescs[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name), help, []string{muxLabel}, nil)
	}
	c.connected = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "connected"), "通道是否可用（1/0）", []string{muxLabel}, nil)
	c.txRate = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "tx_rate"), "最近 60 秒的平均发送速率（条/秒）", []string{muxLabel}, nil)
	return c
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counterDescs {
		ch <- d
	}
	ch <- c.connected
	ch <- c.txRate
}

// Collect 实现 prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, name := range c.registry.Names() {
		m, err := c.registry.Lookup(name)
		if err != nil {
			// 抓取期间被注销
			continue
		}

		snap := m.Counters()
		for i, v := range snap.Array() {
			idx := types.CounterIndex(i)
			vt := prometheus.CounterValue
			if idx.IsGauge() {
				vt = prometheus.GaugeValue
			}
			ch <- prometheus.MustNewConstMetric(c.counterDescs[i], vt, float64(v), name)
		}

		connected := 0.0
		if m.IsConnected() {
			connected = 1
		}
		ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, connected, name)
		ch <- prometheus.MustNewConstMetric(c.txRate, prometheus.GaugeValue, c.observeTx(name, snap.Transmitted), name)
	}
}

// observeTx 把两次抓取之间的发送增量计入速率窗口
//
// 计数器被重置时增量按当前值计算。
func (c *Collector) observeTx(name string, tx int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	meter, ok := c.meters[name]
	if !ok {
		meter = NewRateMeter(c.clock)
		c.meters[name] = meter
	}

	delta := tx - c.lastTx[name]
	if delta < 0 {
		delta = tx
	}
	if ok && delta > 0 {
		meter.Add(delta)
	}
	c.lastTx[name] = tx
	return meter.Rate()
}

// Forget 丢弃已注销实例的速率状态
func (c *Collector) Forget(name string) {
	c.mu.Lock()
	delete(c.meters, name)
	delete(c.lastTx, name)
	c.mu.Unlock()
	logger.Debug("清除速率状态", "mux", name)
}
