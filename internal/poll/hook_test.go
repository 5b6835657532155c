package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitStatus[P, T any](t *testing.T, h *Hook[P, T], want Status) State[T] {
	t.Helper()
	require.Eventually(t, func() bool { return h.State().Status == want }, time.Second, 5*time.Millisecond)
	return h.State()
}

func TestMountLoadsAndTicks(t *testing.T) {
	var calls atomic.Int32
	sched := NewManualScheduler()
	h := New(func(ctx context.Context, sym string) (string, error) {
		n := calls.Add(1)
		return sym + "#" + string(rune('0'+n)), nil
	}, "RELIANCE.NS", Options{Name: "stock", Interval: time.Minute, Scheduler: sched})

	assert.Equal(t, Idle, h.State().Status)
	h.Mount(context.Background())
	defer h.Unmount()

	st := waitStatus(t, h, Success)
	assert.Equal(t, "RELIANCE.NS#1", st.Data)
	assert.True(t, st.HasData)
	assert.Equal(t, 1, sched.Len())

	sched.Tick()
	require.Eventually(t, func() bool { return h.State().Data == "RELIANCE.NS#2" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, TriggerTick, h.State().Trigger)
}

func TestZeroIntervalRegistersNoTimer(t *testing.T) {
	sched := NewManualScheduler()
	h := New(func(context.Context, struct{}) (int, error) { return 1, nil }, struct{}{}, Options{Scheduler: sched})
	h.Mount(context.Background())
	waitStatus(t, h, Success)
	h.Unmount()
	assert.Equal(t, 0, sched.Len())
}

func TestStaleResponseIsDropped(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	h := New(func(ctx context.Context, sym string) (string, error) {
		if sym == "OLD" {
			close(firstStarted)
			<-releaseFirst
			return "old data", nil
		}
		return "new data", nil
	}, "OLD", Options{Name: "stock"})

	h.Mount(context.Background())
	<-firstStarted
	h.SetParams("NEW")
	waitStatus(t, h, Success)
	close(releaseFirst)
	h.Unmount()

	st := h.State()
	assert.Equal(t, "new data", st.Data)
	assert.Equal(t, uint64(2), st.Seq)
	assert.Equal(t, "NEW", h.Params())
}

func TestSupersededRequestIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	var first atomic.Bool
	first.Store(true)
	h := New(func(ctx context.Context, _ int) (int, error) {
		if first.CompareAndSwap(true, false) {
			<-ctx.Done()
			close(cancelled)
			return 0, ctx.Err()
		}
		return 2, nil
	}, 0, Options{})

	h.Mount(context.Background())
	require.Eventually(t, func() bool { return !first.Load() }, time.Second, time.Millisecond)
	h.Refresh()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("superseded request was not cancelled")
	}
	st := waitStatus(t, h, Success)
	assert.Equal(t, 2, st.Data)
	h.Unmount()
}

func TestErrorPolicies(t *testing.T) {
	boom := errors.New("boom")
	var fail atomic.Bool
	fetch := func(context.Context, struct{}) (string, error) {
		if fail.Load() {
			return "", boom
		}
		return "good", nil
	}

	clearing := New(fetch, struct{}{}, Options{Policy: ClearOnError})
	keeping := New(fetch, struct{}{}, Options{Policy: KeepLastGood})
	clearing.Mount(context.Background())
	keeping.Mount(context.Background())
	waitStatus(t, clearing, Success)
	waitStatus(t, keeping, Success)

	fail.Store(true)
	clearing.Refresh()
	keeping.Refresh()

	st := waitStatus(t, clearing, Error)
	assert.False(t, st.HasData)
	assert.Empty(t, st.Data)
	assert.ErrorIs(t, st.Err, boom)

	st = waitStatus(t, keeping, Error)
	assert.True(t, st.HasData)
	assert.Equal(t, "good", st.Data)
	assert.ErrorIs(t, st.Err, boom)

	fail.Store(false)
	keeping.Refresh()
	st = waitStatus(t, keeping, Success)
	assert.NoError(t, st.Err)

	clearing.Unmount()
	keeping.Unmount()
}

func TestNoFetchAfterUnmount(t *testing.T) {
	defer goleak.VerifyNone(t)

	var calls atomic.Int32
	sched := NewManualScheduler()
	h := New(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "x", nil
	}, "q", Options{Interval: time.Second, Scheduler: sched})

	h.Mount(context.Background())
	waitStatus(t, h, Success)
	h.Unmount()
	before := calls.Load()

	sched.Tick()
	h.Refresh()
	h.SetParams("other")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, before, calls.Load())
	assert.Equal(t, 0, sched.Len())
}

func TestUnmountWaitsForInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	var returned atomic.Bool
	h := New(func(ctx context.Context, _ int) (int, error) {
		close(started)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		returned.Store(true)
		return 1, nil
	}, 0, Options{})

	h.Mount(context.Background())
	<-started
	h.Unmount()

	assert.True(t, returned.Load())
	assert.Equal(t, Loading, h.State().Status)
	assert.False(t, h.State().HasData)
}

func TestSubscribeReplaysAndFollows(t *testing.T) {
	h := New(func(context.Context, int) (int, error) { return 42, nil }, 0, Options{})
	ch, unsubscribe := h.Subscribe()

	first := <-ch
	assert.Equal(t, Idle, first.Status)

	h.Mount(context.Background())
	var last State[int]
	require.Eventually(t, func() bool {
		select {
		case last = <-ch:
		default:
		}
		return last.Status == Success
	}, time.Second, time.Millisecond)
	assert.Equal(t, 42, last.Data)

	h.Unmount()
	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestRemountUsesLatestParams(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	h := New(func(_ context.Context, days int) (int, error) {
		mu.Lock()
		seen = append(seen, days)
		mu.Unlock()
		return days, nil
	}, 7, Options{})

	h.SetParams(14)
	h.Mount(context.Background())
	st := waitStatus(t, h, Success)
	h.Unmount()

	assert.Equal(t, 14, st.Data)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{14}, seen)
}

func TestCronSchedulerFires(t *testing.T) {
	s := NewCronScheduler()
	fired := make(chan struct{}, 4)
	stop := s.Every(time.Second, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("cron entry never fired")
	}
	stop()
	<-s.Stop().Done()
}

func TestStatusText(t *testing.T) {
	b, err := Success.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "success", string(b))
	assert.Equal(t, "idle", Idle.String())
}

func TestResetClearsStateAndParams(t *testing.T) {
	h := New(func(_ context.Context, days int) (int, error) { return days, nil }, 7, Options{})
	h.Mount(context.Background())
	h.SetParams(14)
	require.Eventually(t, func() bool {
		st := h.State()
		return st.Status == Success && st.Data == 14
	}, time.Second, time.Millisecond)
	h.Unmount()

	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()
	<-ch

	h.Reset()
	st := h.State()
	assert.Equal(t, Idle, st.Status)
	assert.False(t, st.HasData)
	assert.Zero(t, st.Data)
	assert.NoError(t, st.Err)
	assert.Equal(t, 7, h.Params())

	got := <-ch
	assert.False(t, got.HasData)
}

func TestResetDiscardsInFlightResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan struct{})
	release := make(chan struct{})
	h := New(func(ctx context.Context, _ int) (int, error) {
		close(started)
		<-release
		return 1, nil
	}, 0, Options{})

	h.Mount(context.Background())
	<-started
	h.Reset()
	close(release)
	h.Unmount()

	st := h.State()
	assert.Equal(t, Idle, st.Status)
	assert.False(t, st.HasData)
}
