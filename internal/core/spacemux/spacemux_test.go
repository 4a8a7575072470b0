package spacemux

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-isomux/internal/core/adaptor"
	"github.com/dep2p/go-isomux/internal/core/space"
	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
	"github.com/dep2p/go-isomux/tests/mocks"
)

const waitFor = 2 * time.Second

func newSpaceMux(t *testing.T, opts ...Option) (*SpaceMux, *space.TSpace) {
	t.Helper()

	sp := space.New(space.WithGCInterval(0))
	opts = append([]Option{WithName("acq"), WithNearMissWait(50 * time.Millisecond)}, opts...)
	m, err := New(sp, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Terminate(time.Second)
		_ = sp.Close()
	})
	return m, sp
}

func request(tid, trace string) *iso.Message {
	return iso.New("0200").Set(iso.FieldTerminalID, tid).Set(iso.FieldTraceNumber, trace)
}

func respond(req *iso.Message) *iso.Message {
	resp := req.Clone()
	if err := resp.SetResponseMTI(); err != nil {
		panic(err)
	}
	return resp.Set(iso.FieldResponseCode, "00")
}

// startResponder 模拟对端：从出站队列取请求，把响应写入入站队列
func startResponder(t *testing.T, sp interfaces.Space, delay time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		for {
			req, err := sp.In(ctx, "acq.out", 0)
			if err != nil || req == nil {
				return
			}
			go func() {
				time.Sleep(delay)
				_ = sp.Out("acq.in", respond(req), 0)
			}()
		}
	}()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilSpace)

	sp := space.New()
	defer sp.Close()
	_, err = New(sp, WithKeyFields())
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(sp, WithMTIMapping([3]string{"0123", "0123456789", "0123456789"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSpaceMux_Request(t *testing.T) {
	m, sp := newSpaceMux(t)
	startResponder(t, sp, 0)

	resp, err := m.Request(context.Background(), request("1", "1"), waitFor)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
	assert.Equal(t, "00", resp.GetString(iso.FieldResponseCode))

	c := m.Counters()
	assert.Equal(t, int64(1), c.Transmitted)
	assert.Equal(t, int64(1), c.Received)
	assert.Zero(t, c.TxPending)
	assert.Zero(t, c.RxPending)
	assert.Empty(t, sp.Keys())
}

func TestSpaceMux_ConcurrentRequests(t *testing.T) {
	m, sp := newSpaceMux(t)
	startResponder(t, sp, 5*time.Millisecond)

	const n = 30
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trace := fmt.Sprintf("%06d", i+1)
			resp, err := m.Request(context.Background(), request("29110001", trace), waitFor)
			switch {
			case err != nil:
				errs <- err
			case resp == nil:
				errs <- fmt.Errorf("trace %s: no response", trace)
			case resp.GetString(iso.FieldTraceNumber) != trace:
				errs <- fmt.Errorf("trace %s: got %s", trace, resp.GetString(iso.FieldTraceNumber))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int64(n), m.Counters().Received)
}

func TestSpaceMux_Timeout(t *testing.T) {
	m, sp := newSpaceMux(t)

	start := time.Now()
	resp, err := m.Request(context.Background(), request("1", "7"), 30*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	key, _ := m.Key(request("1", "7"))
	assert.Nil(t, sp.Rdp(key+".req"))
	assert.Equal(t, int64(1), m.Counters().RxExpired)
}

func TestSpaceMux_LateResponseIsUnhandled(t *testing.T) {
	m, sp := newSpaceMux(t, WithUnhandled("acq.unhandled", time.Minute))

	req := request("1", "9")
	resp, err := m.Request(context.Background(), req, 20*time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, resp)

	require.NoError(t, sp.Out("acq.in", respond(req), 0))
	late := sp.Inp("acq.unhandled")
	require.NotNil(t, late)
	assert.Equal(t, "0210", late.MTI())
	assert.Equal(t, int64(1), m.Counters().RxUnmatched)
}

func TestSpaceMux_NearMiss(t *testing.T) {
	m, sp := newSpaceMux(t, WithNearMissWait(time.Second))

	req := request("1", "3")
	key, err := m.Key(req)
	require.NoError(t, err)

	// 监听器已取走标记但响应尚未写入时超时
	go func() {
		for sp.Inp(key+".req") == nil {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
		_ = sp.Out(key, respond(req), 0)
	}()

	resp, err := m.Request(context.Background(), req, 30*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
}

func TestSpaceMux_DuplicateKey(t *testing.T) {
	m, _ := newSpaceMux(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Request(context.Background(), request("1", "5"), 200*time.Millisecond)
	}()

	key, _ := m.Key(request("1", "5"))
	assert.Eventually(t, func() bool { return m.space.Rdp(key+".req") != nil }, waitFor, time.Millisecond)
	_, err := m.Request(context.Background(), request("1", "5"), time.Second)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	<-done
}

func TestSpaceMux_MissingKey(t *testing.T) {
	m, _ := newSpaceMux(t)
	_, err := m.Request(context.Background(), iso.New("0800"), time.Second)
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = m.Request(context.Background(), nil, time.Second)
	assert.ErrorIs(t, err, ErrNilMessage)
}

func TestSpaceMux_ContextCanceled(t *testing.T) {
	m, _ := newSpaceMux(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	resp, err := m.Request(ctx, request("1", "1"), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
}

func TestSpaceMux_ForwardsUnmatched(t *testing.T) {
	ctrl := gomock.NewController(t)
	listener := mocks.NewMockRequestListener(ctrl)
	m, sp := newSpaceMux(t)
	m.SetRequestListener(listener)

	got := make(chan *iso.Message, 1)
	listener.EXPECT().
		Process(gomock.Any(), gomock.Any()).
		DoAndReturn(func(src interfaces.Source, msg *iso.Message) {
			assert.Same(t, m, src)
			got <- msg
		})

	require.NoError(t, sp.Out("acq.in", iso.New("0800").Set(iso.FieldTraceNumber, "1"), 0))
	select {
	case msg := <-got:
		assert.Equal(t, "0800", msg.MTI())
	case <-time.After(waitFor):
		t.Fatal("listener not called")
	}

	c := m.Counters()
	assert.Equal(t, int64(1), c.Received)
	assert.Equal(t, int64(1), c.RxForwarded)
}

func TestSpaceMux_SendAndEnqueue(t *testing.T) {
	m, sp := newSpaceMux(t)

	require.NoError(t, m.Send(iso.New("0800")))
	assert.Equal(t, 1, sp.Size("acq.out"))
	assert.Equal(t, int64(1), m.Counters().TxPending)

	assert.ErrorIs(t, m.Enqueue(nil), ErrNotImplemented)
	assert.ErrorIs(t, m.Send(nil), ErrNilMessage)
}

func TestSpaceMux_IsConnectedFollowsReadyKey(t *testing.T) {
	m, sp := newSpaceMux(t)
	assert.False(t, m.IsConnected())

	require.NoError(t, sp.Out("acq.ready", iso.New("0800"), 0))
	assert.True(t, m.IsConnected())

	sp.Inp("acq.ready")
	assert.False(t, m.IsConnected())
}

func TestSpaceMux_TerminateWaitsForInflight(t *testing.T) {
	m, sp := newSpaceMux(t)
	startResponder(t, sp, 50*time.Millisecond)

	result := make(chan *iso.Message, 1)
	go func() {
		resp, _ := m.Request(context.Background(), request("1", "2"), waitFor)
		result <- resp
	}()
	assert.Eventually(t, func() bool { return m.Counters().RxPending == 1 }, waitFor, time.Millisecond)

	require.NoError(t, m.Terminate(waitFor))
	assert.NotNil(t, <-result)

	_, err := m.Request(context.Background(), request("1", "3"), time.Second)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.ErrorIs(t, m.Send(iso.New("0800")), ErrTerminated)
}

func TestSpaceMux_TerminateGraceWakesWaiters(t *testing.T) {
	m, _ := newSpaceMux(t)

	errCh := make(chan error, 1)
	go func() {
		_, err := m.Request(context.Background(), request("1", "2"), 0)
		errCh <- err
	}()
	assert.Eventually(t, func() bool { return m.Counters().RxPending == 1 }, waitFor, time.Millisecond)

	start := time.Now()
	require.NoError(t, m.Terminate(30*time.Millisecond))
	assert.Less(t, time.Since(start), waitFor)
	err := <-errCh
	assert.ErrorIs(t, err, ErrTerminated)
	assert.ErrorIs(t, err, types.ErrTerminated)
}

func TestSpaceMux_ResetCounters(t *testing.T) {
	m, _ := newSpaceMux(t)
	require.NoError(t, m.Send(iso.New("0800")))
	m.ResetCounters()
	assert.Zero(t, m.Counters().Transmitted)
}

func TestSpaceMux_WithAdaptor(t *testing.T) {
	sp := space.New(space.WithGCInterval(0))
	defer sp.Close()

	ch := mocks.NewConnectedMockChannel("acq")
	ch.OnSend = ch.Echo()

	a, err := adaptor.New(ch, sp, adaptor.WithName("acq"), adaptor.WithRetryDelay(10*time.Millisecond))
	require.NoError(t, err)
	m, err := New(sp, WithName("acq"))
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = m.Stop(ctx)
		_ = a.Stop(ctx)
	}()

	assert.Eventually(t, m.IsConnected, waitFor, 5*time.Millisecond)

	resp, err := m.Request(context.Background(), request("1", "1"), waitFor)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
	assert.Equal(t, 1, ch.SentCount())
}

func TestSpaceMux_UnclaimedResponseExpires(t *testing.T) {
	mock := clock.NewMock()
	sp := space.New(space.WithClock(mock), space.WithGCInterval(0))
	m, err := New(sp, WithName("acq"), WithNearMissWait(time.Second), WithClock(mock))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = m.Terminate(time.Second)
		_ = sp.Close()
	})

	req := request("29110001", "000001")
	key, err := m.Key(req)
	require.NoError(t, err)

	// 请求方已写入标记但不再等待
	require.NoError(t, sp.Out(key+".req", req, 0))
	require.NoError(t, sp.Out("acq.in", respond(req), 0))

	assert.Equal(t, 1, sp.Size(key))
	assert.Nil(t, sp.Rdp(key+".req"))

	mock.Add(time.Second + time.Millisecond)
	assert.Equal(t, 0, sp.Size(key))
}

func TestConfig_ResponseTTL(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, cfg.NearMissWait, cfg.responseTTL())

	cfg.NearMissWait = 0
	assert.Equal(t, defaultResponseTTL, cfg.responseTTL())
}
