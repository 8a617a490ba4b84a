package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTickInterval is the color step interval of a pixel-map animation.
const DefaultTickInterval = 1 * time.Second

var ErrEmptyColors = errors.New("animation requires at least one color")

// TickFunc receives each color step of a channel's animation.
// It must not call back into the Animator for the same channel.
type TickFunc func(color string)

type animation struct {
	colors []string
	index  atomic.Int64
	cancel context.CancelFunc
	done   chan struct{}
}

func (a *animation) current() string {
	return a.colors[a.index.Load()]
}

// stop cancels the run and waits until its goroutine has exited.
func (a *animation) stop() {
	a.cancel()
	<-a.done
}

// Animator runs at most one color cycle per channel. The color index is
// channel-global, so every viewer of a channel sees the same sequence.
type Animator struct {
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.Mutex
	runs map[string]*animation
}

func NewAnimator(clock clockwork.Clock, interval time.Duration) *Animator {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Animator{
		clock:    clock,
		interval: interval,
		runs:     make(map[string]*animation),
	}
}

// Start begins cycling colors for channelID. The first color is emitted
// before Start returns; later steps follow once per interval.
// A run already active for the channel is stopped first.
func (a *Animator) Start(channelID string, colors []string, onTick TickFunc) error {
	if len(colors) == 0 {
		return ErrEmptyColors
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &animation{
		colors: append([]string(nil), colors...),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	for {
		a.mu.Lock()
		old, exists := a.runs[channelID]
		if !exists {
			a.runs[channelID] = run
			a.mu.Unlock()
			break
		}
		delete(a.runs, channelID)
		a.mu.Unlock()

		slog.Warn("Animation already running, replacing it", "channel_id", channelID)
		old.stop()
	}

	ticker := a.clock.NewTicker(a.interval)
	a.emit(channelID, onTick, run.current())
	go a.loop(ctx, channelID, run, ticker, onTick)
	return nil
}

// Stop cancels the channel's run, if any. When Stop returns no further
// ticks will be emitted for the stopped run.
func (a *Animator) Stop(channelID string) {
	a.mu.Lock()
	run, exists := a.runs[channelID]
	if exists {
		delete(a.runs, channelID)
	}
	a.mu.Unlock()

	if exists {
		run.stop()
	}
}

// Restart stops any current run and starts a new one from the first color.
func (a *Animator) Restart(channelID string, colors []string, onTick TickFunc) error {
	a.Stop(channelID)
	return a.Start(channelID, colors, onTick)
}

func (a *Animator) Running(channelID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, exists := a.runs[channelID]
	return exists
}

// Current returns the color last emitted for channelID.
func (a *Animator) Current(channelID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	run, exists := a.runs[channelID]
	if !exists {
		return "", false
	}
	return run.current(), true
}

func (a *Animator) RunningCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.runs)
}

// StopAll stops every run. Used on shutdown.
func (a *Animator) StopAll() {
	a.mu.Lock()
	runs := a.runs
	a.runs = make(map[string]*animation)
	a.mu.Unlock()

	for _, run := range runs {
		run.stop()
	}
}

func (a *Animator) loop(ctx context.Context, channelID string, run *animation, ticker clockwork.Ticker, onTick TickFunc) {
	defer close(run.done)
	defer ticker.Stop()

	n := int64(len(run.colors))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if ctx.Err() != nil {
				return
			}
			next := (run.index.Load() + 1) % n
			run.index.Store(next)
			a.emit(channelID, onTick, run.colors[next])
		}
	}
}

func (a *Animator) emit(channelID string, onTick TickFunc, color string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Animation tick panic recovered", "channel_id", channelID, "panic", r)
		}
	}()
	onTick(color)
}
