package poll

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Status int

const (
	Idle Status = iota
	Loading
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return "idle"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Policy decides what happens to the last good data when a load fails.
type Policy int

const (
	ClearOnError Policy = iota
	KeepLastGood
)

type Trigger string

const (
	TriggerMount   Trigger = "mount"
	TriggerTick    Trigger = "tick"
	TriggerRefresh Trigger = "refresh"
	TriggerParams  Trigger = "params"
)

type State[T any] struct {
	Status    Status
	Data      T
	HasData   bool
	Err       error
	Seq       uint64
	Trigger   Trigger
	UpdatedAt time.Time
}

type FetchFunc[P, T any] func(ctx context.Context, params P) (T, error)

type Options struct {
	Name      string
	Interval  time.Duration
	Policy    Policy
	Timeout   time.Duration
	Scheduler Scheduler
	Logger    *zap.Logger
}

// Hook drives one card's data: it loads on mount, on every scheduler tick,
// on Refresh and on SetParams. Each load supersedes the one in flight, and
// results carrying an older sequence number are discarded.
type Hook[P, T any] struct {
	fetch FetchFunc[P, T]
	opts  Options
	log   *zap.Logger

	mu             sync.Mutex
	initial        P
	params         P
	state          State[T]
	seq            uint64
	mounted        bool
	ctx            context.Context
	cancelMount    context.CancelFunc
	cancelInFlight context.CancelFunc
	stopTimer      func()
	wg             sync.WaitGroup
	subs           map[chan State[T]]struct{}
}

func New[P, T any](fetch FetchFunc[P, T], params P, opts Options) *Hook[P, T] {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Name != "" {
		log = log.With(zap.String("hook", opts.Name))
	}
	return &Hook[P, T]{
		fetch:   fetch,
		opts:    opts,
		log:     log,
		initial: params,
		params:  params,
		subs:    make(map[chan State[T]]struct{}),
	}
}

func (h *Hook[P, T]) Name() string { return h.opts.Name }

// Mount starts the hook: an immediate load plus the interval timer when one
// is configured. Mounting an already mounted hook does nothing.
func (h *Hook[P, T]) Mount(ctx context.Context) {
	h.mu.Lock()
	if h.mounted {
		h.mu.Unlock()
		return
	}
	h.mounted = true
	h.ctx, h.cancelMount = context.WithCancel(ctx)
	if h.opts.Interval > 0 && h.opts.Scheduler != nil {
		h.stopTimer = h.opts.Scheduler.Every(h.opts.Interval, func() { h.load(TriggerTick) })
	}
	h.mu.Unlock()

	h.load(TriggerMount)
}

// Unmount stops the timer, cancels the request in flight and waits for it to
// return. No state change is published after Unmount returns.
func (h *Hook[P, T]) Unmount() {
	h.mu.Lock()
	if !h.mounted {
		h.mu.Unlock()
		return
	}
	h.mounted = false
	stop := h.stopTimer
	h.stopTimer = nil
	if h.cancelInFlight != nil {
		h.cancelInFlight()
		h.cancelInFlight = nil
	}
	h.cancelMount()
	h.mu.Unlock()

	if stop != nil {
		stop()
	}
	h.wg.Wait()
}

// Reset drops the data and error and restores the parameters the hook was
// created with. A load still in flight is cancelled and its result ignored.
// Subscribers receive the empty state.
func (h *Hook[P, T]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelInFlight != nil {
		h.cancelInFlight()
		h.cancelInFlight = nil
	}
	h.seq++
	h.params = h.initial
	h.state = State[T]{Seq: h.seq}
	h.publishLocked()
}

func (h *Hook[P, T]) Refresh() {
	h.load(TriggerRefresh)
}

// SetParams stores p and reloads. The new parameters are kept even when the
// hook is not mounted, so the next Mount uses them.
func (h *Hook[P, T]) SetParams(p P) {
	h.mu.Lock()
	h.params = p
	h.mu.Unlock()
	h.load(TriggerParams)
}

func (h *Hook[P, T]) Params() P {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params
}

func (h *Hook[P, T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Subscribe returns a channel of state snapshots. The current state is sent
// first. A slow reader only ever misses intermediate states: the newest
// snapshot replaces an unread one.
func (h *Hook[P, T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)
	var once sync.Once

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.state
	h.mu.Unlock()

	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsubscribe
}

func (h *Hook[P, T]) load(trigger Trigger) {
	h.mu.Lock()
	if !h.mounted {
		h.mu.Unlock()
		return
	}
	if h.cancelInFlight != nil {
		h.cancelInFlight()
	}
	h.seq++
	seq := h.seq
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if h.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(h.ctx, h.opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(h.ctx)
	}
	h.cancelInFlight = cancel
	params := h.params

	h.state.Status = Loading
	h.state.Seq = seq
	h.state.Trigger = trigger
	h.publishLocked()
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		defer cancel()
		data, err := h.fetch(ctx, params)
		h.complete(seq, trigger, data, err)
	}()
}

func (h *Hook[P, T]) complete(seq uint64, trigger Trigger, data T, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.mounted || seq != h.seq {
		h.log.Debug("dropped stale result", zap.Uint64("seq", seq), zap.Uint64("current", h.seq))
		return
	}
	if err != nil && errors.Is(err, context.Canceled) && h.ctx.Err() != nil {
		return
	}
	h.cancelInFlight = nil

	h.state.Seq = seq
	h.state.Trigger = trigger
	h.state.UpdatedAt = time.Now()
	if err != nil {
		h.state.Status = Error
		h.state.Err = err
		if h.opts.Policy == ClearOnError {
			var zero T
			h.state.Data = zero
			h.state.HasData = false
		}
		h.log.Warn("load failed", zap.String("trigger", string(trigger)), zap.Error(err))
	} else {
		h.state.Status = Success
		h.state.Data = data
		h.state.HasData = true
		h.state.Err = nil
	}
	h.publishLocked()
}

func (h *Hook[P, T]) publishLocked() {
	snap := h.state
	for ch := range h.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
