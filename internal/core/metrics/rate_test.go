package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestRateMeter_Window(t *testing.T) {
	clk := clock.NewMock()
	r := NewRateMeter(clk)

	r.Add(60)
	assert.InDelta(t, 1.0, r.Rate(), 1e-9)

	clk.Add(30 * time.Second)
	r.Add(60)
	assert.InDelta(t, 2.0, r.Rate(), 1e-9)

	// 第一批滑出窗口
	clk.Add(31 * time.Second)
	assert.InDelta(t, 1.0, r.Rate(), 1e-9)

	clk.Add(2 * time.Minute)
	assert.Zero(t, r.Rate())
}

func TestRateMeter_Reset(t *testing.T) {
	r := NewRateMeter(clock.NewMock())
	r.Add(120)
	r.Reset()
	assert.Zero(t, r.Rate())
}
