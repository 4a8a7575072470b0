package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-isomux/internal/core/registry"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
)

// stubMux 返回固定计数器的多路复用器
type stubMux struct {
	counters  types.Counters
	connected bool
}

func (s *stubMux) Request(context.Context, *iso.Message, time.Duration) (*iso.Message, error) {
	return nil, nil
}
func (s *stubMux) Send(*iso.Message) error                       { return nil }
func (s *stubMux) Enqueue(interfaces.PendingRequest) error       { return nil }
func (s *stubMux) IsConnected() bool                             { return s.connected }
func (s *stubMux) Terminate(time.Duration) error                 { return nil }
func (s *stubMux) Counters() types.Counters                      { return s.counters }
func (s *stubMux) ResetCounters()                                { s.counters = types.Counters{} }
func (s *stubMux) SetRequestListener(interfaces.RequestListener) {}

func TestCollector_Counters(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("acq", &stubMux{
		counters: types.Counters{
			Connects:    2,
			Transmitted: 10,
			Received:    9,
			TxPending:   3,
		},
		connected: true,
	}))

	c := NewCollector("isomux", reg, clock.NewMock())

	expected := `
# HELP isomux_connects_total 多路复用器计数器 connects
# TYPE isomux_connects_total counter
isomux_connects_total{mux="acq"} 2
# HELP isomux_tx_total 多路复用器计数器 tx
# TYPE isomux_tx_total counter
isomux_tx_total{mux="acq"} 10
# HELP isomux_rx_total 多路复用器计数器 rx
# TYPE isomux_rx_total counter
isomux_rx_total{mux="acq"} 9
# HELP isomux_tx_pending 多路复用器计数器 tx_pending
# TYPE isomux_tx_pending gauge
isomux_tx_pending{mux="acq"} 3
# HELP isomux_connected 通道是否可用（1/0）
# TYPE isomux_connected gauge
isomux_connected{mux="acq"} 1
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"isomux_connects_total", "isomux_tx_total", "isomux_rx_total",
		"isomux_tx_pending", "isomux_connected")
	assert.NoError(t, err)
}

func TestCollector_SeriesPerMux(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("a", &stubMux{}))
	require.NoError(t, reg.Register("b", &stubMux{}))

	c := NewCollector("isomux", reg, nil)
	// 每个实例：计数器 + connected + tx_rate
	perMux := int(types.NumCounters) + 2
	assert.Equal(t, 2*perMux, testutil.CollectAndCount(c))

	require.NoError(t, reg.Unregister("a"))
	assert.Equal(t, perMux, testutil.CollectAndCount(c))
}

func TestCollector_TxRate(t *testing.T) {
	clk := clock.NewMock()
	m := &stubMux{counters: types.Counters{Transmitted: 100}}
	reg := registry.New()
	require.NoError(t, reg.Register("acq", m))
	c := NewCollector("isomux", reg, clk)

	// 首次抓取只建立基线
	assert.Zero(t, c.observeTx("acq", 100))

	clk.Add(time.Second)
	assert.InDelta(t, 1.0, c.observeTx("acq", 160), 1e-9)

	// 计数器重置后按当前值计入
	clk.Add(time.Second)
	assert.InDelta(t, 1.5, c.observeTx("acq", 30), 1e-9)

	c.Forget("acq")
	assert.Zero(t, c.observeTx("acq", 500))
}
