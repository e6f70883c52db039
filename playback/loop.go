package playback

import (
	"log/slog"
	"sync"
	"time"

	cursorcache "github.com/wolfeidau/cursor-cache"
)

// DefaultRefreshInterval approximates a 60Hz display refresh.
const DefaultRefreshInterval = time.Second / 60

// Refresher delivers display refresh timestamps.
type Refresher interface {
	C() <-chan time.Time
	Stop()
}

type tickerRefresher struct {
	ticker *time.Ticker
}

// NewTickerRefresher returns a Refresher backed by a time.Ticker.
func NewTickerRefresher(interval time.Duration) Refresher {
	return &tickerRefresher{ticker: time.NewTicker(interval)}
}

func (t *tickerRefresher) C() <-chan time.Time { return t.ticker.C }
func (t *tickerRefresher) Stop()               { t.ticker.Stop() }

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRefresher sets the factory used to create the refresh signal when the
// loop starts.
func WithRefresher(fn func() Refresher) LoopOption {
	return func(l *Loop) {
		l.newRefresher = fn
	}
}

// WithPlayerOptions configures the Loop's Player.
func WithPlayerOptions(opts ...Option) LoopOption {
	return func(l *Loop) {
		l.playerOpts = append(l.playerOpts, opts...)
	}
}

// WithLoopLogger sets the logger for the loop.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// Loop drives a Player from a Refresher on its own goroutine and reports
// frame changes through a callback. A Loop runs at most once: after Stop it
// cannot be restarted.
type Loop struct {
	newRefresher func() Refresher
	playerOpts   []Option
	logger       *slog.Logger

	mu      sync.Mutex
	player  *Player
	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoop creates a stopped Loop with an idle Player.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		newRefresher: func() Refresher { return NewTickerRefresher(DefaultRefreshInterval) },
		logger:       slog.Default(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.player = NewPlayer(l.playerOpts...)
	return l
}

// Start begins playback, calling onFrame from the loop goroutine whenever
// the frame index changes. Calling Start on a running or stopped Loop does
// nothing.
func (l *Loop) Start(onFrame func(index int)) {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.run(l.newRefresher(), onFrame)
}

// Stop cancels the loop and waits for it to exit. No onFrame call starts
// after Stop returns. Stop must not be called from onFrame.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	running := l.running
	l.mu.Unlock()

	close(l.stopCh)
	if running {
		<-l.doneCh
	}
}

// SetFrames switches the animation. It reports whether playback was reset.
func (l *Loop) SetFrames(fs *cursorcache.FrameSet) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.player.SetFrames(fs)
}

// Pause suspends frame advancement.
func (l *Loop) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.player.Pause()
}

// Resume continues frame advancement.
func (l *Loop) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.player.Resume()
}

// State returns the Player's lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.player.State()
}

// Snapshot returns the Player's scheduling state.
func (l *Loop) Snapshot() cursorcache.PlaybackState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.player.Snapshot()
}

func (l *Loop) run(r Refresher, onFrame func(int)) {
	defer close(l.doneCh)
	defer r.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case now, ok := <-r.C():
			if !ok {
				l.logger.Debug("refresher closed, stopping playback")
				return
			}

			l.mu.Lock()
			index, changed := l.player.Tick(now)
			l.mu.Unlock()

			if !changed || onFrame == nil {
				continue
			}
			// Stop may have been requested while ticking.
			select {
			case <-l.stopCh:
				return
			default:
			}
			onFrame(index)
		}
	}
}
