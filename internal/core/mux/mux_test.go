package mux

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
	"github.com/dep2p/go-isomux/pkg/types"
	"github.com/dep2p/go-isomux/tests/mocks"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

// newTestMux 创建使用短退避的多路复用器并启动
func newTestMux(t *testing.T, ch interfaces.Channel, opts ...Option) *Mux {
	t.Helper()

	base := []Option{
		WithName("test"),
		WithReconnectDelay(10 * time.Millisecond),
		WithRetryDelay(10 * time.Millisecond),
		WithSweepInterval(20 * time.Millisecond),
	}
	m, err := New(ch, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))

	t.Cleanup(func() {
		_ = m.Terminate(100 * time.Millisecond)
	})
	return m
}

func authRequest(terminal, trace string) *iso.Message {
	return iso.New("0200").
		Set(iso.FieldTerminalID, terminal).
		Set(iso.FieldTraceNumber, trace)
}

func responseTo(req *iso.Message) *iso.Message {
	resp := req.Clone()
	_ = resp.SetResponseMTI()
	return resp.Set(iso.FieldResponseCode, "00")
}

// ============================================================================
//                              基本请求
// ============================================================================

func TestMux_RequestResponse(t *testing.T) {
	ch := mocks.NewMockChannel("scenario")
	ch.OnSend = ch.Echo()
	m := newTestMux(t, ch)

	msg := authRequest("1", "1")
	assert.Equal(t, "0000000000000001000001", m.KeyDeriver().Key(msg))

	resp, err := m.Request(context.Background(), msg, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "0210", resp.MTI())
	assert.Equal(t, "1", resp.GetString(iso.FieldTerminalID))
	assert.Equal(t, iso.DirectionIncoming, resp.Direction())

	require.Eventually(t, func() bool {
		c := m.Counters()
		return c.Transmitted == 1 && c.Received == 1
	}, waitFor, tick)

	c := m.Counters()
	assert.Equal(t, int64(0), c.TxPending)
	assert.Equal(t, int64(0), c.RxPending)
	assert.Equal(t, int64(1), c.Connects)
	assert.True(t, m.IsConnected())
	assert.Equal(t, types.MuxStateConnected, m.State())
}

func TestMux_EnqueueAndAwait(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("enqueue")
	ch.OnSend = ch.Echo()
	m := newTestMux(t, ch)

	r := m.NewRequest(authRequest("29110001", "000123"))
	require.NoError(t, m.Enqueue(r))

	resp := r.AwaitResponse(context.Background(), 5*time.Second)
	require.NotNil(t, resp)
	assert.Equal(t, "000123", resp.GetString(iso.FieldTraceNumber))
	assert.True(t, r.IsTransmitted())
	assert.GreaterOrEqual(t, r.ResponseLatency(), time.Duration(0))
}

// ============================================================================
//                              关联正确性
// ============================================================================

func TestMux_CorrelationUnderConcurrency(t *testing.T) {
	const n = 50

	ch := mocks.NewConnectedMockChannel("concurrent")
	sent := make(chan *iso.Message, n)
	ch.OnSend = func(msg *iso.Message) { sent <- msg }
	m := newTestMux(t, ch)

	// 全部发出后倒序应答
	go func() {
		batch := make([]*iso.Message, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, <-sent)
		}
		for i := len(batch) - 1; i >= 0; i-- {
			ch.Inject(responseTo(batch[i]))
		}
	}()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			trace := strconv.Itoa(i + 1)
			resp, err := m.Request(context.Background(), authRequest("77", trace), 5*time.Second)
			if err != nil {
				errs <- err
				return
			}
			if resp == nil {
				errs <- fmt.Errorf("trace %s: timeout", trace)
				return
			}
			if got := resp.GetString(iso.FieldTraceNumber); got != trace {
				errs <- fmt.Errorf("trace %s: got response for %s", trace, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	c := m.Counters()
	assert.Equal(t, int64(n), c.Received)
	assert.Equal(t, int64(0), c.RxUnmatched)
}

func TestMux_DuplicateResponseNotDeliveredTwice(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("dup")
	ch.OnSend = func(msg *iso.Message) {
		ch.Inject(responseTo(msg))
		ch.Inject(responseTo(msg).Set(iso.FieldResponseCode, "05"))
	}
	m := newTestMux(t, ch)

	resp, err := m.Request(context.Background(), authRequest("1", "9"), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "00", resp.GetString(iso.FieldResponseCode))

	require.Eventually(t, func() bool {
		c := m.Counters()
		return c.Received == 2 && c.RxUnmatched == 1
	}, waitFor, tick)
}

// ============================================================================
//                              超时
// ============================================================================

func TestMux_TimeoutAndLateResponse(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("timeout")
	m := newTestMux(t, ch)

	msg := authRequest("5", "55")
	start := time.Now()
	resp, err := m.Request(context.Background(), msg, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// 迟到的响应不会投递，计入过期接收
	ch.Inject(responseTo(msg))
	require.Eventually(t, func() bool {
		c := m.Counters()
		return c.RxExpired == 1 && c.RxPending == 0
	}, waitFor, tick)
	assert.Equal(t, int64(0), m.Counters().RxUnmatched)
}

func TestMux_ContextCancel(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("cancel")
	m := newTestMux(t, ch)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	resp, err := m.Request(ctx, authRequest("1", "2"), 0)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMux_ExpiredBeforeTransmitIsDropped(t *testing.T) {
	ch := mocks.NewMockChannel("expired")
	m := newTestMux(t, ch, WithReconnect(false))

	r := m.NewRequest(authRequest("1", "3"))
	require.NoError(t, m.Enqueue(r))
	assert.Nil(t, r.AwaitResponse(context.Background(), 20*time.Millisecond))
	assert.True(t, r.IsExpired())

	// 外部恢复连接后，过期句柄被丢弃而不发送
	require.NoError(t, ch.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return m.Counters().TxExpired == 1
	}, waitFor, tick)
	assert.Equal(t, 0, ch.SentCount())
	assert.False(t, r.IsTransmitted())
}

// ============================================================================
//                              发送顺序与重连
// ============================================================================

func TestMux_FIFOTransmitOrder(t *testing.T) {
	const n = 100

	ch := mocks.NewConnectedMockChannel("fifo")
	m := newTestMux(t, ch)

	for i := 0; i < n; i++ {
		require.NoError(t, m.Send(authRequest("1", strconv.Itoa(i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, ch.WaitSent(ctx, n))

	for i, msg := range ch.Sent() {
		assert.Equal(t, strconv.Itoa(i), msg.GetString(iso.FieldTraceNumber))
	}
	require.Eventually(t, func() bool { return m.Counters().Transmitted == n }, waitFor, tick)
}

func TestMux_ReconnectResilience(t *testing.T) {
	ch := mocks.NewMockChannel("reconnect")
	ch.FailConnect(types.ErrConnectRefused, errors.New("network unreachable"))
	m := newTestMux(t, ch)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Send(authRequest("1", strconv.Itoa(i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, ch.WaitSent(ctx, 5))

	// 不丢失也不重复
	time.Sleep(50 * time.Millisecond)
	sent := ch.Sent()
	require.Len(t, sent, 5)
	for i, msg := range sent {
		assert.Equal(t, strconv.Itoa(i), msg.GetString(iso.FieldTraceNumber))
	}
	assert.GreaterOrEqual(t, m.Counters().Connects, int64(3))
}

func TestMux_SendIOErrorRetried(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("ioerror")
	ch.FailSend(errors.New("broken pipe"))
	m := newTestMux(t, ch)

	a := authRequest("1", "1")
	b := authRequest("1", "2")
	require.NoError(t, m.Send(a))
	require.NoError(t, m.Send(b))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, ch.WaitSent(ctx, 2))

	sent := ch.Sent()
	require.Len(t, sent, 2)
	assert.Same(t, a, sent[0])
	assert.Same(t, b, sent[1])
	assert.GreaterOrEqual(t, ch.Disconnects(), 1)
}

func TestMux_ProtocolErrorDropsItem(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("protocol")
	ch.FailSend(fmt.Errorf("%w: field 52 too long", types.ErrProtocol))
	m := newTestMux(t, ch)

	a := authRequest("1", "1")
	b := authRequest("1", "2")
	require.NoError(t, m.Send(a))
	require.NoError(t, m.Send(b))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, ch.WaitSent(ctx, 1))

	require.Eventually(t, func() bool { return m.Counters().TxPending == 0 }, waitFor, tick)
	sent := ch.Sent()
	require.Len(t, sent, 1)
	assert.Same(t, b, sent[0])
	assert.Equal(t, 0, ch.Disconnects())
}

// ============================================================================
//                              未匹配报文
// ============================================================================

func TestMux_UnmatchedForwardedToListener(t *testing.T) {
	ctrl := gomock.NewController(t)
	listener := mocks.NewMockRequestListener(ctrl)

	ch := mocks.NewConnectedMockChannel("forward")
	m := newTestMux(t, ch)

	done := make(chan struct{})
	listener.EXPECT().
		Process(gomock.Any(), gomock.Any()).
		Do(func(src interfaces.Source, msg *iso.Message) {
			assert.Same(t, m, src)
			assert.Equal(t, "0800", msg.MTI())
			close(done)
		}).
		Times(1)
	m.SetRequestListener(listener)

	ch.Inject(iso.New("0800").Set(iso.FieldTraceNumber, "1"))

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("接收者未被调用")
	}
	assert.Equal(t, int64(1), m.Counters().RxForwarded)
	assert.Equal(t, int64(0), m.Counters().RxUnmatched)
}

func TestMux_UnmatchedCounted(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("unmatched")
	m := newTestMux(t, ch)

	ch.Inject(iso.New("0810").Set(iso.FieldTraceNumber, "1"))
	require.Eventually(t, func() bool {
		return m.Counters().RxUnmatched == 1
	}, waitFor, tick)
}

func TestMux_ListenerPanicDoesNotStopReceiver(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("panic")
	m := newTestMux(t, ch)
	m.SetRequestListener(interfaces.RequestListenerFunc(func(interfaces.Source, *iso.Message) {
		panic("boom")
	}))

	ch.Inject(iso.New("0800"))
	ch.Inject(iso.New("0800"))
	require.Eventually(t, func() bool {
		return m.Counters().RxForwarded == 2
	}, waitFor, tick)
}

// ============================================================================
//                              终止
// ============================================================================

func TestMux_SoftTerminateLetsPendingComplete(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("soft")
	m := newTestMux(t, ch)

	msg := authRequest("1", "77")
	result := make(chan *iso.Message, 1)
	go func() {
		resp, _ := m.Request(context.Background(), msg, 5*time.Second)
		result <- resp
	}()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.True(t, ch.WaitSent(ctx, 1))
	require.Eventually(t, func() bool { return m.Counters().RxPending == 1 }, waitFor, tick)

	terminated := make(chan error, 1)
	go func() { terminated <- m.Terminate(time.Second) }()

	require.Eventually(t, func() bool { return m.State() == types.MuxStateTerminating }, waitFor, tick)
	assert.ErrorIs(t, m.Send(iso.New("0800")), ErrTerminated)

	ch.Inject(responseTo(msg))

	select {
	case resp := <-result:
		require.NotNil(t, resp)
		assert.Equal(t, "0210", resp.MTI())
	case <-time.After(waitFor):
		t.Fatal("软终止期间挂起请求未完成")
	}

	select {
	case err := <-terminated:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Terminate 未返回")
	}
	assert.Equal(t, types.MuxStateTerminated, m.State())
	assert.False(t, ch.IsConnected())
}

func TestMux_HardTerminateWakesCallers(t *testing.T) {
	ch := mocks.NewMockChannel("hard")
	m := newTestMux(t, ch, WithReconnect(false))

	result := make(chan *iso.Message, 1)
	errc := make(chan error, 1)
	go func() {
		resp, err := m.Request(context.Background(), authRequest("1", "1"), 0)
		errc <- err
		result <- resp
	}()
	require.Eventually(t, func() bool { return m.Counters().TxPending == 1 }, waitFor, tick)

	start := time.Now()
	require.NoError(t, m.Terminate(50*time.Millisecond))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrTerminated)
		assert.ErrorIs(t, err, types.ErrTerminated)
		assert.Nil(t, <-result)
	case <-time.After(waitFor):
		t.Fatal("硬终止未唤醒调用方")
	}
	assert.Less(t, time.Since(start), waitFor)
	assert.Equal(t, int64(0), m.Counters().TxPending)
	assert.Equal(t, 0, ch.SentCount())
}

func TestMux_TerminateIdempotent(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("twice")
	m := newTestMux(t, ch)

	require.NoError(t, m.Terminate(100*time.Millisecond))
	require.NoError(t, m.Terminate(100*time.Millisecond))
	assert.ErrorIs(t, m.Start(context.Background()), ErrTerminated)
	_, err := m.Request(context.Background(), authRequest("1", "1"), time.Second)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestMux_TerminateBeforeStart(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("unstarted")
	m, err := New(ch)
	require.NoError(t, err)

	require.NoError(t, m.Terminate(0))
	assert.Equal(t, types.MuxStateTerminated, m.State())
	assert.False(t, ch.IsConnected())
}

func TestMux_StopHonoursContext(t *testing.T) {
	ch := mocks.NewMockChannel("stop")
	m := newTestMux(t, ch, WithReconnect(false))
	require.NoError(t, m.Send(iso.New("0800")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Stop(ctx) }()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Stop 未在截止时间后返回")
	}
	assert.Equal(t, types.MuxStateTerminated, m.State())
}

// ============================================================================
//                              配置与杂项
// ============================================================================

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilChannel)

	_, err = New(mocks.NewMockChannel("bad"), WithTraceField(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(mocks.NewMockChannel("bad"), WithRetryDelay(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type foreignRequest struct{ interfaces.PendingRequest }

func TestMux_EnqueueRejectsForeignHandle(t *testing.T) {
	m := newTestMux(t, mocks.NewConnectedMockChannel("foreign"))
	assert.ErrorIs(t, m.Enqueue(foreignRequest{}), ErrUnsupportedRequest)
	assert.ErrorIs(t, m.Send(nil), ErrNilMessage)
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyStarted)
}

func TestMux_ResetCounters(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("reset")
	m := newTestMux(t, ch)

	ch.Inject(iso.New("0800"))
	require.Eventually(t, func() bool { return m.Counters().RxUnmatched == 1 }, waitFor, tick)
	assert.Equal(t, int64(1), m.Counters().Received)

	m.ResetCounters()
	c := m.Counters()
	assert.Equal(t, int64(0), c.Received)
	assert.Equal(t, int64(0), c.RxUnmatched)
}

func TestMux_CustomKeyDeriver(t *testing.T) {
	ch := mocks.NewConnectedMockChannel("custom")
	ch.OnSend = ch.Echo()
	byRRN := interfaces.KeyDeriverFunc(func(msg *iso.Message) string {
		return msg.GetString(iso.FieldRetrievalRef)
	})
	m := newTestMux(t, ch, WithKeyDeriver(byRRN))

	resp, err := m.Request(context.Background(), iso.New("0200").Set(iso.FieldRetrievalRef, "123456789012"), 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
}
