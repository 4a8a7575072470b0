package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-isomux/internal/core/registry"
)

func TestReporter_ServesMetrics(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("acq", &stubMux{connected: true}))

	prom := prometheus.NewRegistry()
	require.NoError(t, prom.Register(NewCollector("isomux", reg, nil)))

	r := NewReporter("127.0.0.1:0", "/metrics", prom)
	require.NoError(t, r.Start(context.Background()))
	defer func() { assert.NoError(t, r.Stop(context.Background())) }()

	assert.ErrorIs(t, r.Start(context.Background()), ErrReporterStarted)

	resp, err := http.Get("http://" + r.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `isomux_connected{mux="acq"} 1`)
}

func TestReporter_StopIdle(t *testing.T) {
	r := NewReporter("127.0.0.1:0", "", prometheus.NewRegistry())
	assert.NoError(t, r.Stop(context.Background()))
	assert.Empty(t, r.Addr())
}
