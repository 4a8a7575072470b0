package isomux

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dep2p/go-isomux/config"
	"github.com/dep2p/go-isomux/internal/core/metrics"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/tests/mocks"
)

const waitFor = 5 * time.Second

func echoChannel(name string) *mocks.MockChannel {
	ch := mocks.NewMockChannel(name)
	ch.OnSend = ch.Echo()
	return ch
}

func stopSwitch(t *testing.T, s *Switch) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestSwitch_QueueMode(t *testing.T) {
	ctx := context.Background()
	sw, err := Start(ctx,
		WithName("acq"),
		WithChannelInstance(echoChannel("acq")),
		WithMetrics(false, ""),
	)
	require.NoError(t, err)
	defer stopSwitch(t, sw)

	assert.Equal(t, config.ModeQueue, sw.Mode())
	assert.Equal(t, "acq", sw.Channel().Name())

	resp, err := sw.Request(ctx, iso.New("0200").Set(11, "000001"), waitFor)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
	assert.Equal(t, "00", resp.GetString(iso.FieldResponseCode))

	m, err := sw.Mux("acq")
	require.NoError(t, err)
	assert.Same(t, sw.Multiplexer(), m)
	assert.Equal(t, int64(1), sw.Counters().Received)
}

func TestSwitch_SpaceMode(t *testing.T) {
	ctx := context.Background()
	sw, err := Start(ctx,
		WithName("iss"),
		WithMode(config.ModeSpace),
		WithChannelInstance(echoChannel("iss")),
		WithMetrics(false, ""),
	)
	require.NoError(t, err)
	defer stopSwitch(t, sw)

	assert.Eventually(t, sw.IsConnected, waitFor, 5*time.Millisecond)

	req := iso.New("0200").Set(11, "000001").Set(41, "29110001")
	resp, err := sw.Request(ctx, req, waitFor)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
	assert.Equal(t, "29110001", resp.GetString(41))
}

func TestSwitch_SpaceModeBadger(t *testing.T) {
	ctx := context.Background()
	sw, err := Start(ctx,
		WithName("iss"),
		WithMode(config.ModeSpace),
		WithSpaceBackend(config.SpaceBadger, t.TempDir()),
		WithChannelInstance(echoChannel("iss")),
		WithMetrics(false, ""),
	)
	require.NoError(t, err)
	defer stopSwitch(t, sw)

	assert.Eventually(t, sw.IsConnected, waitFor, 5*time.Millisecond)

	resp, err := sw.Request(ctx, iso.New("0100").Set(11, "000042").Set(41, "1"), waitFor)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0110", resp.MTI())
}

func TestSwitch_MetricsEndpoint(t *testing.T) {
	ctx := context.Background()
	var reporter *metrics.Reporter
	sw, err := Start(ctx,
		WithName("acq"),
		WithChannelInstance(echoChannel("acq")),
		WithMetrics(true, "127.0.0.1:0"),
		WithFxOptions(fx.Populate(&reporter)),
	)
	require.NoError(t, err)
	defer stopSwitch(t, sw)

	_, err = sw.Request(ctx, iso.New("0800").Set(11, "000001"), waitFor)
	require.NoError(t, err)

	require.NotNil(t, reporter)
	resp, err := http.Get("http://" + reporter.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `isomux_rx_total{mux="acq"} 1`)
}

func TestSwitch_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sw, err := New(ctx, WithChannelInstance(echoChannel("x")), WithMetrics(false, ""))
	require.NoError(t, err)

	assert.ErrorIs(t, sw.Stop(ctx), ErrNotStarted)
	require.NoError(t, sw.Start(ctx))
	assert.ErrorIs(t, sw.Start(ctx), ErrAlreadyStarted)
	require.NoError(t, sw.Close())

	assert.ErrorIs(t, sw.Start(ctx), ErrClosed)
	assert.NoError(t, sw.Close())
}

func TestSwitch_InvalidOptions(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, WithMode("ring"))
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(ctx, WithChannelInstance(nil))
	assert.ErrorIs(t, err, ErrInvalidOption)

	cfg := config.NewConfig()
	cfg.Channel.Kind = "udp"
	_, err = New(ctx, WithConfig(cfg))
	assert.Error(t, err)
}
