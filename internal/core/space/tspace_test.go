package space

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-isomux/pkg/interfaces"
	"github.com/dep2p/go-isomux/pkg/iso"
)

func newTestSpace(t *testing.T, opts ...Option) *TSpace {
	t.Helper()
	s := New(opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func trace(m *iso.Message) string {
	if m == nil {
		return ""
	}
	return m.GetString(iso.FieldTraceNumber)
}

func msg(trace string) *iso.Message {
	return iso.New("0200").Set(iso.FieldTraceNumber, trace)
}

func TestTSpace_FIFO(t *testing.T) {
	s := newTestSpace(t)

	require.NoError(t, s.Out("q", msg("1"), 0))
	require.NoError(t, s.Out("q", msg("2"), 0))
	assert.Equal(t, 2, s.Size("q"))

	assert.Equal(t, "1", trace(s.Inp("q")))
	assert.Equal(t, "2", trace(s.Inp("q")))
	assert.Nil(t, s.Inp("q"))
	assert.Empty(t, s.Keys())
}

func TestTSpace_Push(t *testing.T) {
	s := newTestSpace(t)

	require.NoError(t, s.Out("q", msg("1"), 0))
	require.NoError(t, s.Push("q", msg("0"), 0))
	assert.Equal(t, "0", trace(s.Rdp("q")))
	assert.Equal(t, "0", trace(s.Inp("q")))
	assert.Equal(t, "1", trace(s.Inp("q")))
}

func TestTSpace_Expiry(t *testing.T) {
	mock := clock.NewMock()
	s := newTestSpace(t, WithClock(mock))

	require.NoError(t, s.Out("q", msg("1"), time.Second))
	require.NoError(t, s.Out("q", msg("2"), 0))
	require.NoError(t, s.Out("gone", msg("3"), time.Second))

	mock.Add(time.Second)
	assert.Equal(t, 1, s.Size("q"))
	assert.Equal(t, []string{"q"}, s.Keys())
	assert.Equal(t, "2", trace(s.Inp("q")))
}

func TestTSpace_GC(t *testing.T) {
	mock := clock.NewMock()
	s := newTestSpace(t, WithClock(mock))

	require.NoError(t, s.Out("a", msg("1"), time.Second))
	require.NoError(t, s.Out("b", msg("2"), 0))
	mock.Add(2 * time.Second)

	assert.Equal(t, 1, s.GC())
	s.mu.Lock()
	_, ok := s.entries["a"]
	s.mu.Unlock()
	assert.False(t, ok)
}

func TestTSpace_BackgroundGC(t *testing.T) {
	mock := clock.NewMock()
	s := newTestSpace(t, WithClock(mock), WithGCInterval(time.Second))
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Out("a", msg("1"), 500*time.Millisecond))
	mock.Add(time.Second)

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTSpace_InWaitsForOut(t *testing.T) {
	s := newTestSpace(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.Out("q", msg("7"), 0)
	}()

	m, err := s.In(context.Background(), "q", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "7", trace(m))
	assert.Equal(t, 0, s.Size("q"))
}

func TestTSpace_InTimeoutReturnsNil(t *testing.T) {
	s := newTestSpace(t)

	m, err := s.In(context.Background(), "q", 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestTSpace_InContextCanceled(t *testing.T) {
	s := newTestSpace(t)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	m, err := s.In(ctx, "q", 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, m)
}

func TestTSpace_RdWakesAllReaders(t *testing.T) {
	s := newTestSpace(t)

	const readers = 5
	var wg sync.WaitGroup
	results := make(chan string, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, _ := s.Rd(context.Background(), "q", 2*time.Second)
			results <- trace(m)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Out("q", msg("9"), 0))
	wg.Wait()
	close(results)

	for r := range results {
		assert.Equal(t, "9", r)
	}
	assert.Equal(t, 1, s.Size("q"))
}

func TestTSpace_ConcurrentTakers(t *testing.T) {
	s := newTestSpace(t)

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := s.In(context.Background(), "q", 5*time.Second)
			if err != nil || m == nil {
				return
			}
			mu.Lock()
			seen[trace(m)] = true
			mu.Unlock()
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, s.Out("q", msg(string(rune('A'+i))), 0))
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestTSpace_ListenerCanConsume(t *testing.T) {
	s := newTestSpace(t)

	var got []string
	id := s.AddListener("q", interfaces.SpaceListenerFunc(func(key string, _ *iso.Message) {
		got = append(got, trace(s.Inp(key)))
	}))

	require.NoError(t, s.Out("q", msg("1"), 0))
	require.NoError(t, s.Out("q", msg("2"), 0))
	assert.Equal(t, []string{"1", "2"}, got)
	assert.Equal(t, 0, s.Size("q"))

	s.RemoveListener("q", id)
	require.NoError(t, s.Out("q", msg("3"), 0))
	assert.Len(t, got, 2)
	assert.Equal(t, 1, s.Size("q"))
}

func TestTSpace_Close(t *testing.T) {
	s := New()
	require.NoError(t, s.Start(context.Background()))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.In(context.Background(), "q", 0)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, s.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("reader not woken by Close")
	}

	assert.ErrorIs(t, s.Out("q", msg("1"), 0), ErrClosed)
	assert.ErrorIs(t, s.Start(context.Background()), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestTSpace_InExpiryReportsDeadline(t *testing.T) {
	mock := clock.NewMock()
	s := newTestSpace(t, WithClock(mock), WithGCInterval(0))

	require.NoError(t, s.Out("q", msg("1"), time.Second))
	require.NoError(t, s.Out("q", msg("2"), 0))

	m, exp, err := s.InExpiry(context.Background(), "q", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "1", trace(m))
	assert.Equal(t, mock.Now().Add(time.Second), exp)

	m, exp, err = s.InExpiry(context.Background(), "q", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "2", trace(m))
	assert.True(t, exp.IsZero())
}
